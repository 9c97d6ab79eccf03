package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/secondme-labs/match-backend/internal/act"
	"github.com/secondme-labs/match-backend/internal/auth"
	"github.com/secondme-labs/match-backend/internal/chat"
	"github.com/secondme-labs/match-backend/internal/common"
	"github.com/secondme-labs/match-backend/internal/config"
	"github.com/secondme-labs/match-backend/internal/secondme"
	"gorm.io/gorm"
)

// JobPublisher enqueues act jobs for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Sessions auth.SessionStore
	SM       *secondme.Client
	ChatSvc  *chat.Service
	ActRepo  *act.Repo
	Rabbit   JobPublisher
	Log      zerolog.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, sessions auth.SessionStore, sm *secondme.Client, rabbit JobPublisher, log zerolog.Logger) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Sessions: sessions,
		SM:       sm,
		ChatSvc:  chat.NewService(chat.NewRepo(db), sm, log),
		ActRepo:  act.NewRepo(db),
		Rabbit:   rabbit,
		Log:      log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"status": "ok"})
}
