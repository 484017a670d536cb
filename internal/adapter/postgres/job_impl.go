package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

// JobRepoImpl stores job specs as JSONB documents.
type JobRepoImpl struct {
	db *pgxpool.Pool
}

func NewJobRepo(db *pgxpool.Pool) *JobRepoImpl {
	return &JobRepoImpl{db: db}
}

func (r *JobRepoImpl) Save(ctx context.Context, spec *entity.JobSpec) error {
	doc, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode job spec: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO jobs (id, spec, created_at) VALUES ($1, $2, $3)`,
		spec.ID, doc, spec.CreatedAt)
	return err
}

func (r *JobRepoImpl) FindByID(ctx context.Context, id string) (*entity.JobSpec, error) {
	var doc []byte
	if err := r.db.QueryRow(ctx, `SELECT spec FROM jobs WHERE id = $1`, id).Scan(&doc); err != nil {
		return nil, mapErr(err)
	}
	return decodeSpec(doc)
}

func (r *JobRepoImpl) List(ctx context.Context) ([]*entity.JobSpec, error) {
	rows, err := r.db.Query(ctx, `SELECT spec FROM jobs ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []*entity.JobSpec
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		spec, err := decodeSpec(doc)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// Delete relies on ON DELETE CASCADE for runs and results.
func (r *JobRepoImpl) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func decodeSpec(doc []byte) (*entity.JobSpec, error) {
	var spec entity.JobSpec
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode job spec: %w", err)
	}
	return &spec, nil
}
