package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// RunRepoImpl persists JobRun rows. Save is an upsert keyed by run id.
type RunRepoImpl struct {
	db *pgxpool.Pool
}

func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

const runColumns = `id, job_id, status, progress_percent, current_page, record_count,
	error_message, warning, result_id, created_at, started_at, finished_at`

func (r *RunRepoImpl) Save(ctx context.Context, run *entity.JobRun) error {
	query := `
		INSERT INTO job_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress_percent = EXCLUDED.progress_percent,
			current_page = EXCLUDED.current_page,
			record_count = EXCLUDED.record_count,
			error_message = EXCLUDED.error_message,
			warning = EXCLUDED.warning,
			result_id = EXCLUDED.result_id,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at;
	`
	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.JobID,
		string(run.Status),
		run.ProgressPercent,
		run.CurrentPage,
		run.RecordCount,
		run.ErrorMessage,
		run.Warning,
		run.ResultID,
		run.CreatedAt,
		run.StartedAt,
		run.FinishedAt,
	)
	return mapErr(err)
}

func (r *RunRepoImpl) FindByID(ctx context.Context, id string) (*entity.JobRun, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM job_runs WHERE id = $1`, id)
	return scanRun(row)
}

func (r *RunRepoImpl) LatestByJob(ctx context.Context, jobID string) (*entity.JobRun, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+runColumns+` FROM job_runs
		WHERE job_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, jobID)
	return scanRun(row)
}

func (r *RunRepoImpl) ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.JobRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+runColumns+` FROM job_runs
		WHERE status = $1
		ORDER BY created_at ASC, seq ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*entity.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*entity.JobRun, error) {
	var run entity.JobRun
	var status string
	err := row.Scan(
		&run.ID,
		&run.JobID,
		&status,
		&run.ProgressPercent,
		&run.CurrentPage,
		&run.RecordCount,
		&run.ErrorMessage,
		&run.Warning,
		&run.ResultID,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	run.Status = entity.RunStatus(status)
	return &run, nil
}
