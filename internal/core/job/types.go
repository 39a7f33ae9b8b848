package job

import (
	"time"

	"navigator/internal/core/nav"
)

// Job is the stored record behind a submitted navigation.
type Job struct {
	JobID     string      `json:"job_id"`
	Type      Type        `json:"type"`
	Status    Status      `json:"status"`
	Goal      *nav.Goal   `json:"goal,omitempty"`
	Result    *nav.Result `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Type string

const (
	TypeNavigate Type = "navigate"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the job will not change any more.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }
