package act

import (
	"time"

	"github.com/secondme-labs/match-backend/internal/secondme"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type JobType string

const (
	TypeCompatibility JobType = "compatibility"
	TypeCustom        JobType = "custom"
)

// Job is an asynchronous action-judgment request. The worker picks it up off
// the queue, issues the upstream call on behalf of its owner and stores the
// structured result.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	UserID uint64  `gorm:"not null;index:uniq_act_job_idempo,unique,priority:1" json:"-"`
	Type   JobType `gorm:"type:varchar(16);not null" json:"type"`

	// request parameters, JSON-encoded per Type
	Payload string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_act_job_idempo,unique,priority:2" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded: the judgment result, JSON-encoded.
	Result *string `gorm:"type:text" json:"result,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "act_jobs" }

// CompatibilityParams is the payload for TypeCompatibility jobs.
type CompatibilityParams struct {
	User1Shades []string `json:"user1Shades"`
	User2Shades []string `json:"user2Shades"`
	User1Bio    string   `json:"user1Bio,omitempty"`
	User2Bio    string   `json:"user2Bio,omitempty"`
}

// CustomParams is the payload for TypeCustom jobs.
type CustomParams struct {
	Prompt        string                 `json:"prompt"`
	ActionControl secondme.ActionControl `json:"actionControl"`
}
