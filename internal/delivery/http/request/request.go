package request

import "github.com/ghazaziz76/data-scraper/internal/entity"

// SubmitJobRequest is the body of POST /api/jobs. Ids and timestamps are
// assigned by the server.
type SubmitJobRequest struct {
	Name             string                   `json:"name"`
	Description      string                   `json:"description"`
	Type             entity.JobType           `json:"type"`
	Source           entity.Source            `json:"source"`
	Extraction       entity.ExtractionConfig  `json:"extraction"`
	Pagination       *entity.PaginationConfig `json:"pagination"`
	RateLimitSeconds float64                  `json:"rateLimitSeconds"`
	Render           bool                     `json:"render"`
	EmptyPolicy      entity.EmptyPolicy       `json:"emptyPolicy"`
}

func (r SubmitJobRequest) ToSpec() entity.JobSpec {
	return entity.JobSpec{
		Name:             r.Name,
		Description:      r.Description,
		Type:             r.Type,
		Source:           r.Source,
		Extraction:       r.Extraction,
		Pagination:       r.Pagination,
		RateLimitSeconds: r.RateLimitSeconds,
		Render:           r.Render,
		EmptyPolicy:      r.EmptyPolicy,
	}
}
