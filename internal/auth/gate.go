package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/models"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

// ErrNoSession is returned by a SessionStore when the session id is unknown
// or expired.
var ErrNoSession = errors.New("auth: session not found")

// SessionStore maps opaque login-session ids to user row ids.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, userID uint64, ttl time.Duration) error
	UserID(ctx context.Context, sessionID string) (uint64, error)
	Delete(ctx context.Context, sessionID string) error
}

// Refresher exchanges a refresh token for a fresh token pair.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*secondme.Tokens, error)
}

// Gate resolves login sessions to users, transparently refreshing the
// upstream access token when it has expired.
type Gate struct {
	db        *gorm.DB
	sessions  SessionStore
	refresher Refresher
	log       zerolog.Logger
}

func NewGate(db *gorm.DB, sessions SessionStore, refresher Refresher, log zerolog.Logger) *Gate {
	return &Gate{db: db, sessions: sessions, refresher: refresher, log: log}
}

// CurrentUser returns the user owning the session, or nil when the request is
// unauthenticated. It never returns an error: lookup failures and refresh
// failures alike resolve to nil, with the cause logged. The stored tokens are
// only mutated on a successful refresh.
func (g *Gate) CurrentUser(ctx context.Context, sessionID string) *models.User {
	if sessionID == "" {
		return nil
	}

	uid, err := g.sessions.UserID(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			g.log.Error().Err(err).Msg("session store lookup failed")
		}
		return nil
	}

	var user models.User
	if err := g.db.WithContext(ctx).First(&user, uid).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			g.log.Error().Err(err).Uint64("user_id", uid).Msg("user lookup failed")
		}
		return nil
	}

	if user.TokenExpiresAt.After(time.Now()) {
		return &user
	}

	tokens, err := g.refresher.RefreshToken(ctx, user.RefreshToken)
	if err != nil {
		g.log.Warn().Err(err).Uint64("user_id", user.ID).Msg("token refresh failed")
		return nil
	}

	expiresAt := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	err = g.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"access_token":     tokens.AccessToken,
			"refresh_token":    tokens.RefreshToken,
			"token_expires_at": expiresAt,
		}).Error
	if err != nil {
		g.log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to persist refreshed tokens")
		return nil
	}

	user.AccessToken = tokens.AccessToken
	user.RefreshToken = tokens.RefreshToken
	user.TokenExpiresAt = expiresAt
	return &user
}
