package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/models"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm/clause"
)

const (
	stateCookie    = "oauth_state"
	stateCookieTTL = 600 // seconds
	oauthScope     = "user.info user.info.shades chat"
)

func (h *Handler) secureCookies() bool {
	return h.Cfg.AppEnv != "local"
}

// Login redirects the browser to the SecondMe authorize URL with a fresh
// anti-forgery state stored in a short-lived cookie.
func (h *Handler) Login(c *gin.Context) {
	state, err := auth.NewState()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, "failed to generate state")
		return
	}

	c.SetCookie(stateCookie, state, stateCookieTTL, "/", "", h.secureCookies(), true)

	authURL, err := url.Parse(h.Cfg.OAuthURL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, "invalid oauth url")
		return
	}
	q := authURL.Query()
	q.Set("client_id", h.Cfg.ClientID)
	q.Set("redirect_uri", h.Cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("scope", oauthScope)
	authURL.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, authURL.String())
}

// Callback finishes the OAuth flow: verify state, exchange the code, upsert
// the user and hand out the session cookie. Failures redirect home with an
// error query so the UI can surface them.
func (h *Handler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	saved, _ := c.Cookie(stateCookie)
	c.SetCookie(stateCookie, "", -1, "/", "", h.secureCookies(), true)

	if err := auth.VerifyState(c.Query("state"), saved); err != nil {
		if h.Cfg.OAuthStateStrict {
			h.Log.Warn().Msg("oauth state mismatch, rejecting callback")
			c.Redirect(http.StatusFound, "/?error=state_mismatch")
			return
		}
		// some WebViews drop the state cookie
		h.Log.Warn().Msg("oauth state mismatch, continuing under lenient policy")
	}

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, "/?error=no_code")
		return
	}

	tokens, err := h.SM.ExchangeCode(ctx, code)
	if err != nil {
		h.Log.Error().Err(err).Msg("code exchange failed")
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	info, err := h.SM.GetUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		h.Log.Error().Err(err).Msg("user info fetch failed")
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	user, err := h.upsertUser(ctx, tokens, info)
	if err != nil {
		h.Log.Error().Err(err).Msg("user upsert failed")
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	sid, err := common.NewULID()
	if err != nil {
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}
	if err := h.Sessions.Save(ctx, sid, user.ID, h.Cfg.SessionTTL); err != nil {
		h.Log.Error().Err(err).Msg("failed to save login session")
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	signed, err := auth.SignSessionToken(h.Cfg.SessionSecret, sid, h.Cfg.SessionTTL)
	if err != nil {
		c.Redirect(http.StatusFound, "/?error=auth_failed")
		return
	}

	c.SetCookie(middleware.SessionCookie, signed, int(h.Cfg.SessionTTL.Seconds()), "/", "", h.secureCookies(), true)
	c.Redirect(http.StatusFound, "/")
}

// upsertUser is a single atomic conditional write keyed by the external user
// id; concurrent logins for the same identity cannot duplicate rows.
func (h *Handler) upsertUser(ctx context.Context, tokens *secondme.Tokens, info *secondme.UserInfo) (*models.User, error) {
	user := models.User{
		SecondmeUserID: info.UserID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
		Nickname:       info.Nickname,
		Avatar:         info.Avatar,
	}
	err := h.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "secondme_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_expires_at", "nickname", "avatar", "updated_at"}),
		}).
		Create(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		// conflict path: reload to get the existing row id
		if err := h.DB.WithContext(ctx).Where("secondme_user_id = ?", info.UserID).First(&user).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func (h *Handler) clearSession(c *gin.Context) {
	if token, err := c.Cookie(middleware.SessionCookie); err == nil && token != "" {
		if sid, err := auth.ParseSessionToken(h.Cfg.SessionSecret, token); err == nil {
			if err := h.Sessions.Delete(c.Request.Context(), sid); err != nil {
				h.Log.Warn().Err(err).Msg("failed to delete login session")
			}
		}
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies(), true)
}

// Logout (POST) clears the session and returns JSON.
func (h *Handler) Logout(c *gin.Context) {
	h.clearSession(c)
	common.OK(c, gin.H{"success": true})
}

// LogoutRedirect (GET) clears the session and sends the browser home.
func (h *Handler) LogoutRedirect(c *gin.Context) {
	h.clearSession(c)
	c.Redirect(http.StatusFound, "/")
}
