package repository

import (
	"context"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// JobRepository defines durable storage for job specifications.
type JobRepository interface {
	// Save inserts a new spec. Specs are immutable once saved.
	Save(ctx context.Context, spec *entity.JobSpec) error
	// FindByID returns ErrNotFound when no spec has the id.
	FindByID(ctx context.Context, id string) (*entity.JobSpec, error)
	// List returns every spec, newest first.
	List(ctx context.Context) ([]*entity.JobSpec, error)
	// Delete removes the spec together with its runs and results.
	Delete(ctx context.Context, id string) error
}
