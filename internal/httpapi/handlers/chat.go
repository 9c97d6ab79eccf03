package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

type chatReq struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Chat relays a streaming completion. The upstream bytes are forwarded
// verbatim; the resolved session id travels in the X-Session-Id header since
// the body is the raw stream.
func (h *Handler) Chat(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, "message is required")
		return
	}

	ctx := c.Request.Context()
	sess, chunks, err := h.ChatSvc.StreamReply(ctx, user, req.SessionID, req.Message)
	if err != nil {
		var ue *secondme.UpstreamError
		if errors.As(err, &ue) {
			h.Log.Error().Err(err).Msg("upstream chat call failed")
			common.Fail(c, http.StatusInternalServerError, "upstream chat failed")
		} else {
			h.Log.Error().Err(err).Msg("chat relay failed")
			common.Fail(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Session-Id", sess.SessionID)
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream; drain so persistence still runs
		for range chunks {
		}
		return
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// ListSessions returns all of the user's sessions, most recently active
// first, each with its messages in creation order.
func (h *Handler) ListSessions(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to list sessions")
		common.Fail(c, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}

	common.OK(c, gin.H{"sessions": sessions})
}

type getSessionReq struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// GetSession returns one session with its ordered messages, 404 when the id
// is unknown or belongs to someone else.
func (h *Handler) GetSession(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req getSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "sessionId is required")
		return
	}

	sess, err := h.ChatSvc.GetSession(c.Request.Context(), user.ID, req.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, "session not found")
			return
		}
		h.Log.Error().Err(err).Msg("failed to fetch session")
		common.Fail(c, http.StatusInternalServerError, "failed to fetch session")
		return
	}

	common.OK(c, gin.H{"session": sess})
}
