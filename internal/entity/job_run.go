package entity

import "time"

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no transition leaves s.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo encodes Queued -> Running -> {Completed, Failed, Cancelled}.
// A Queued run may also be cancelled, or failed when it can no longer start.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusCancelled || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	}
	return false
}

// JobRun is the mutable execution record for one attempt at a JobSpec.
type JobRun struct {
	ID              string     `json:"id"`
	JobID           string     `json:"jobId"`
	Status          RunStatus  `json:"status"`
	ProgressPercent int        `json:"progressPercent"`
	CurrentPage     int        `json:"currentPage"`
	RecordCount     int        `json:"recordCount"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	ResultID        string     `json:"resultId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// JobSummary pairs a spec with its most recent run.
type JobSummary struct {
	Spec      JobSpec `json:"spec"`
	LatestRun *JobRun `json:"latestRun,omitempty"`
}
