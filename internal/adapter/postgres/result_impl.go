package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// ResultRepoImpl stores result sets with their records as a JSON array.
type ResultRepoImpl struct {
	db *pgxpool.Pool
}

func NewResultRepo(db *pgxpool.Pool) *ResultRepoImpl {
	return &ResultRepoImpl{db: db}
}

func (r *ResultRepoImpl) Save(ctx context.Context, result *entity.Result) error {
	data := result.Data
	if data == nil {
		data = []entity.Record{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode result data: %w", err)
	}

	query := `
		INSERT INTO results (id, job_id, run_id, job_type, record_count, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = r.db.Exec(ctx, query,
		result.ID,
		result.JobID,
		result.RunID,
		string(result.Type),
		result.RecordCount,
		result.CreatedAt,
		string(dataJSON),
	)
	return mapErr(err)
}

func (r *ResultRepoImpl) LatestByJob(ctx context.Context, jobID string) (*entity.Result, error) {
	query := `
		SELECT id, job_id, run_id, job_type, record_count, created_at, data::text
		FROM results
		WHERE job_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1;
	`
	var res entity.Result
	var jobType, dataJSON string
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&res.ID,
		&res.JobID,
		&res.RunID,
		&jobType,
		&res.RecordCount,
		&res.CreatedAt,
		&dataJSON,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	res.Type = entity.JobType(jobType)
	if err := json.Unmarshal([]byte(dataJSON), &res.Data); err != nil {
		return nil, fmt.Errorf("failed to decode result data: %w", err)
	}
	return &res, nil
}
