package entity

import "time"

// Result is the persisted, ordered collection of records produced by a
// completed run. It is never mutated after creation.
type Result struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	RunID       string    `json:"runId"`
	Type        JobType   `json:"type"`
	RecordCount int       `json:"recordCount"`
	CreatedAt   time.Time `json:"createdAt"`
	Data        []Record  `json:"data"`
}
