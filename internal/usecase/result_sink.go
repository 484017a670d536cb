package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

// ResultSink materializes the records of a drained run into a Result.
type ResultSink struct {
	results repository.ResultRepository
}

func NewResultSink(results repository.ResultRepository) *ResultSink {
	return &ResultSink{results: results}
}

// Store persists all records at once. The stored copy shares nothing with
// the caller's slice.
func (s *ResultSink) Store(ctx context.Context, spec *entity.JobSpec, runID string, records []entity.Record) (*entity.Result, error) {
	data := make([]entity.Record, len(records))
	for i := range records {
		data[i] = records[i].Clone()
	}
	result := &entity.Result{
		ID:          uuid.NewString(),
		JobID:       spec.ID,
		RunID:       runID,
		Type:        spec.Type,
		RecordCount: len(data),
		CreatedAt:   time.Now().UTC(),
		Data:        data,
	}
	if err := s.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save result for job %s: %w", spec.ID, err)
	}
	return result, nil
}
