package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/models"
)

// SessionCookie is the long-lived login cookie. Its value is a signed token
// wrapping the session id, never the user id itself.
const SessionCookie = "sm_session"

const userKey = "auth_user"

// AuthRequired resolves the session cookie to a user through the gate and
// injects it into the request context. Handlers behind it never look at
// cookies themselves.
func AuthRequired(gate *auth.Gate, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			common.Fail(c, http.StatusUnauthorized, "unauthenticated")
			c.Abort()
			return
		}

		sid, err := auth.ParseSessionToken(secret, token)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, "unauthenticated")
			c.Abort()
			return
		}

		user := gate.CurrentUser(c.Request.Context(), sid)
		if user == nil {
			common.Fail(c, http.StatusUnauthorized, "unauthenticated")
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// UserFromContext returns the user resolved by AuthRequired.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}
