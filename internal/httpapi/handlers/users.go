package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
)

// UserInfo proxies the upstream profile payload verbatim, envelope and all.
func (h *Handler) UserInfo(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	raw, err := h.SM.FetchUserInfoRaw(c.Request.Context(), user.AccessToken)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to fetch user info")
		common.Fail(c, http.StatusInternalServerError, "failed to fetch user info")
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// UserShades proxies the upstream shades payload verbatim.
func (h *Handler) UserShades(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthenticated")
		return
	}

	raw, err := h.SM.FetchShadesRaw(c.Request.Context(), user.AccessToken)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to fetch user shades")
		common.Fail(c, http.StatusInternalServerError, "failed to fetch user shades")
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
