package repository

import (
	"context"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// RunRepository persists JobRun state. Save must be durable and immediately
// visible to subsequent reads once it returns.
type RunRepository interface {
	// Save creates or replaces the run identified by run.ID.
	Save(ctx context.Context, run *entity.JobRun) error
	FindByID(ctx context.Context, id string) (*entity.JobRun, error)
	// LatestByJob returns the most recently created run of a job.
	LatestByJob(ctx context.Context, jobID string) (*entity.JobRun, error)
	// ListByStatus returns runs in the given status, oldest first.
	ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.JobRun, error)
}
