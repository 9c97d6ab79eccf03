package chat

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// UpdateSessionPreview refreshes the last-message preview; gorm bumps
// updated_at alongside it.
func (r *Repo) UpdateSessionPreview(ctx context.Context, id uint64, preview string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("last_message", preview).Error
}

func orderedMessages(tx *gorm.DB) *gorm.DB {
	return tx.Order("chat_messages.id ASC")
}

// ListSessionsWithMessages returns a user's sessions newest-activity first,
// each with its messages in creation order.
func (r *Repo) ListSessionsWithMessages(ctx context.Context, userID uint64) ([]Session, error) {
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Preload("Messages", orderedMessages).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *Repo) GetSessionWithMessages(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Preload("Messages", orderedMessages).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
