package repository

import (
	"context"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// ResultRepository stores completed result sets.
type ResultRepository interface {
	// Save stores a result. A result is written once and never updated.
	Save(ctx context.Context, result *entity.Result) error
	// LatestByJob returns the newest result of a job or ErrNotFound.
	LatestByJob(ctx context.Context, jobID string) (*entity.Result, error)
}
