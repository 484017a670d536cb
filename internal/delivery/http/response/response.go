package response

import "github.com/ghazaziz76/data-scraper/internal/entity"

type SubmitJobResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type RerunJobResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	RunID   string `json:"run_id"`
}

type JobListResponse struct {
	Jobs  []entity.JobSummary `json:"jobs"`
	Count int                 `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
