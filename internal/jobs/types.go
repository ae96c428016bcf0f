package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a job in this status will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	URL       string
	VideoID   string
}

// DownloadJob is one URL going through the pipeline.
type DownloadJob struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	DedupeKey   string    `json:"dedupe_key"`
	URL         string    `json:"url"`
	VideoID     string    `json:"video_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	StatusText  string    `json:"status_text,omitempty"`
	Error       string    `json:"error,omitempty"`
	UserMessage string    `json:"user_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Result is what a finished job learned about its video.
type Result struct {
	VideoID string
	Title   string
}
