package db

import (
	"github.com/secondme-labs/match-backend/internal/act"
	"github.com/secondme-labs/match-backend/internal/chat"
	"github.com/secondme-labs/match-backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	// TranslateError turns driver duplicate-entry errors into
	// gorm.ErrDuplicatedKey, which the idempotency dedupe relies on.
	return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&act.Job{},
	)
}
