package entity

import "time"

// ProgressEvent is published after every page and on every status change.
type ProgressEvent struct {
	JobID           string    `json:"jobId"`
	RunID           string    `json:"runId"`
	Status          RunStatus `json:"status"`
	ProgressPercent int       `json:"progressPercent"`
	Page            int       `json:"page"`
	RecordCount     int       `json:"recordCount"`
	At              time.Time `json:"at"`
}
