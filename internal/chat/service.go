package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/models"
	"gorm.io/gorm"
)

var ErrEmptyMessage = errors.New("chat: message is required")

// Upstream opens a streaming chat completion against the SecondMe API.
type Upstream interface {
	StreamChat(ctx context.Context, accessToken, content, sessionID string) (io.ReadCloser, error)
}

const (
	titleRunes   = 50
	previewRunes = 100
)

type Service struct {
	repo     *Repo
	upstream Upstream
	log      zerolog.Logger
}

func NewService(repo *Repo, upstream Upstream, log zerolog.Logger) *Service {
	return &Service{repo: repo, upstream: upstream, log: log}
}

// StreamReply is the chat relay. It resolves (or lazily creates) the target
// session, records the user message before any upstream I/O, opens the
// upstream stream, and returns a channel of raw byte chunks. Each chunk is
// appended to an accumulation buffer as it is delivered; once the stream is
// drained the accumulated text becomes the assistant message and the session
// preview is refreshed. Persistence failures after the stream are logged and
// swallowed: the caller already holds the full content.
//
// If the caller's context is cancelled mid-stream, forwarding stops and the
// partial accumulation is still persisted, so the stored transcript never
// loses content the user has seen.
func (s *Service) StreamReply(ctx context.Context, user *models.User, sessionID, content string) (*Session, <-chan []byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, ErrEmptyMessage
	}

	sess, err := s.resolveSession(ctx, user.ID, sessionID, content)
	if err != nil {
		return nil, nil, err
	}

	userMsg := &Message{SessionID: sess.SessionID, Role: "user", Content: content}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, nil, err
	}

	// The user message above is durable regardless of what happens next.
	body, err := s.upstream.StreamChat(ctx, user.AccessToken, content, sess.SessionID)
	if err != nil {
		return sess, nil, err
	}

	chunks := make(chan []byte, 16)
	go s.relay(ctx, sess, body, chunks)
	return sess, chunks, nil
}

// resolveSession returns the session matching sessionID when it exists and
// belongs to the user; in every other case a fresh session is created, its
// title derived from the first message.
func (s *Service) resolveSession(ctx context.Context, userID uint64, sessionID, firstMessage string) (*Session, error) {
	if sessionID != "" {
		sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
		if err == nil && sess.UserID == userID {
			return sess, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		SessionID: sid,
		UserID:    userID,
		Title:     truncateRunes(firstMessage, titleRunes),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// relay is the single-reader fan-out: upstream bytes go to the out channel
// unmodified and to the accumulation buffer, then the buffer is persisted.
func (s *Service) relay(ctx context.Context, sess *Session, body io.ReadCloser, out chan<- []byte) {
	defer close(out)
	defer body.Close()

	var full bytes.Buffer
	buf := make([]byte, 4096)
	cancelled := false

read:
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			full.Write(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				cancelled = true
				break read
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				cancelled = true
			} else if err != io.EOF {
				s.log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("upstream stream ended early")
			}
			break
		}
	}

	if cancelled {
		s.log.Warn().
			Str("session_id", sess.SessionID).
			Int("bytes", full.Len()).
			Msg("client disconnected mid-stream, persisting partial reply")
	}
	if full.Len() == 0 {
		return
	}

	// The request context may already be cancelled; the finalization writes
	// must still run.
	pctx := context.WithoutCancel(ctx)
	reply := full.String()

	if err := s.repo.InsertMessage(pctx, &Message{SessionID: sess.SessionID, Role: "assistant", Content: reply}); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to store assistant message")
		return
	}
	if err := s.repo.UpdateSessionPreview(pctx, sess.ID, truncateRunes(reply, previewRunes)); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to update session preview")
	}
}

func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	return s.repo.ListSessionsWithMessages(ctx, userID)
}

func (s *Service) GetSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	return s.repo.GetSessionWithMessages(ctx, userID, sessionID)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
