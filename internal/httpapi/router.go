package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/httpapi/handlers"
	"github.com/secondme-labs/match-backend/internal/httpapi/middleware"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, sessions auth.SessionStore, sm *secondme.Client, rabbit handlers.JobPublisher, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, sessions, sm, rabbit, log)
	gate := auth.NewGate(db, sessions, sm, log)

	r.GET("/ping", h.Ping)

	r.GET("/auth/login", h.Login)
	r.GET("/auth/callback", h.Callback)
	r.GET("/auth/logout", h.LogoutRedirect)
	r.POST("/auth/logout", h.Logout)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(gate, cfg.SessionSecret))
	authGroup.POST("/chat", h.Chat)
	authGroup.GET("/sessions", h.ListSessions)
	authGroup.POST("/sessions", h.GetSession)
	authGroup.GET("/user/info", h.UserInfo)
	authGroup.GET("/user/shades", h.UserShades)
	authGroup.POST("/act", h.Act)
	authGroup.POST("/act/async", h.ActAsync)
	authGroup.GET("/act/jobs/:job_id", h.GetActJob)

	return r
}
