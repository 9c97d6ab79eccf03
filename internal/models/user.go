package models

import "time"

// User is the local record for a SecondMe identity. Exactly one row exists
// per external user id; logins and token refreshes update it in place.
type User struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SecondmeUserID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"secondme_user_id"`
	AccessToken    string    `gorm:"type:text;not null" json:"-"`
	RefreshToken   string    `gorm:"type:text;not null" json:"-"`
	TokenExpiresAt time.Time `gorm:"not null" json:"-"`
	Nickname       string    `gorm:"type:varchar(128)" json:"nickname"`
	Avatar         string    `gorm:"type:varchar(512)" json:"avatar"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
