package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

type JobRepo struct{ db *sql.DB }

func (r *JobRepo) Save(ctx context.Context, spec *entity.JobSpec) error {
	doc, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO jobs(id, spec, created_at) VALUES(?, ?, ?);`,
		spec.ID, string(doc), formatTime(spec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, id string) (*entity.JobSpec, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT spec FROM jobs WHERE id = ?;`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var spec entity.JobSpec
	if err := json.Unmarshal([]byte(doc), &spec); err != nil {
		return nil, fmt.Errorf("decode job spec: %w", err)
	}
	return &spec, nil
}

func (r *JobRepo) List(ctx context.Context) ([]*entity.JobSpec, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT spec FROM jobs ORDER BY created_at DESC, seq DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.JobSpec
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var spec entity.JobSpec
		if err := json.Unmarshal([]byte(doc), &spec); err != nil {
			return nil, fmt.Errorf("decode job spec: %w", err)
		}
		out = append(out, &spec)
	}
	return out, rows.Err()
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type RunRepo struct{ db *sql.DB }

const runColumns = `id, job_id, status, progress_percent, current_page, record_count,
  error_message, warning, result_id, created_at, started_at, finished_at`

func (r *RunRepo) Save(ctx context.Context, run *entity.JobRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO job_runs(`+runColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  progress_percent = excluded.progress_percent,
  current_page = excluded.current_page,
  record_count = excluded.record_count,
  error_message = excluded.error_message,
  warning = excluded.warning,
  result_id = excluded.result_id,
  started_at = excluded.started_at,
  finished_at = excluded.finished_at;`,
		run.ID, run.JobID, string(run.Status), run.ProgressPercent, run.CurrentPage, run.RecordCount,
		run.ErrorMessage, run.Warning, run.ResultID, formatTime(run.CreatedAt),
		formatTimePtr(run.StartedAt), formatTimePtr(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (r *RunRepo) FindByID(ctx context.Context, id string) (*entity.JobRun, error) {
	return scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM job_runs WHERE id = ?;`, id))
}

func (r *RunRepo) LatestByJob(ctx context.Context, jobID string) (*entity.JobRun, error) {
	return scanRun(r.db.QueryRowContext(ctx, `
SELECT `+runColumns+` FROM job_runs
WHERE job_id = ?
ORDER BY created_at DESC, seq DESC
LIMIT 1;`, jobID))
}

func (r *RunRepo) ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.JobRun, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+runColumns+` FROM job_runs
WHERE status = ?
ORDER BY created_at ASC, seq ASC;`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*entity.JobRun, error) {
	var run entity.JobRun
	var status, created string
	var started, finished sql.NullString
	err := row.Scan(&run.ID, &run.JobID, &status, &run.ProgressPercent, &run.CurrentPage, &run.RecordCount,
		&run.ErrorMessage, &run.Warning, &run.ResultID, &created, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)
	if run.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTimePtr(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTimePtr(finished); err != nil {
		return nil, err
	}
	return &run, nil
}

type ResultRepo struct{ db *sql.DB }

func (r *ResultRepo) Save(ctx context.Context, result *entity.Result) error {
	data := result.Data
	if data == nil {
		data = []entity.Record{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode result data: %w", err)
	}

	// The foreign key alone would surface as a driver error.
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ? LIMIT 1;`, result.JobID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO results(id, job_id, run_id, job_type, record_count, created_at, data)
VALUES(?, ?, ?, ?, ?, ?, ?);`,
		result.ID, result.JobID, result.RunID, string(result.Type), result.RecordCount,
		formatTime(result.CreatedAt), string(dataJSON))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r *ResultRepo) LatestByJob(ctx context.Context, jobID string) (*entity.Result, error) {
	var res entity.Result
	var jobType, created, dataJSON string
	err := r.db.QueryRowContext(ctx, `
SELECT id, job_id, run_id, job_type, record_count, created_at, data
FROM results
WHERE job_id = ?
ORDER BY created_at DESC, seq DESC
LIMIT 1;`, jobID).Scan(&res.ID, &res.JobID, &res.RunID, &jobType, &res.RecordCount, &created, &dataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Type = entity.JobType(jobType)
	if res.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &res.Data); err != nil {
		return nil, fmt.Errorf("decode result data: %w", err)
	}
	return &res, nil
}
