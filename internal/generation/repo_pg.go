package generation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `
id, app_id, owner_id, status, current_step, progress_percentage,
screens_total, screens_generated, failed_screens, error_message,
started_at, completed_at, created_at, updated_at`

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO generation_jobs (id, app_id, owner_id, status, current_step, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.AppID,
		job.OwnerID,
		job.Status,
		job.CurrentStep,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1 LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

// ListByApp returns jobs for an app ordered newest-first.
func (r *PGRepo) ListByApp(ctx context.Context, appID string, limit, offset int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + jobColumns + `
FROM generation_jobs
WHERE app_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, appID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// SetStatus patches the status and step label.
func (r *PGRepo) SetStatus(ctx context.Context, jobID, status, currentStep string, startedAt *time.Time) error {
	const query = `
UPDATE generation_jobs
SET status = $2, current_step = $3, started_at = COALESCE($4, started_at), updated_at = $5
WHERE id = $1`
	return r.exec(ctx, query, jobID, status, currentStep, startedAt, time.Now().UTC())
}

// SetProgress patches the progress percentage and, when non-empty, the step label.
func (r *PGRepo) SetProgress(ctx context.Context, jobID string, percentage int, currentStep string) error {
	const query = `
UPDATE generation_jobs
SET progress_percentage = $2,
    current_step = CASE WHEN $3 = '' THEN current_step ELSE $3 END,
    updated_at = $4
WHERE id = $1`
	return r.exec(ctx, query, jobID, percentage, currentStep, time.Now().UTC())
}

// SetScreensTotal patches the planned unit count.
func (r *PGRepo) SetScreensTotal(ctx context.Context, jobID string, total int) error {
	const query = `UPDATE generation_jobs SET screens_total = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, query, jobID, total, time.Now().UTC())
}

// IncScreensGenerated adds one to the generated-unit counter atomically in SQL,
// so concurrent unit writers never lose an increment.
func (r *PGRepo) IncScreensGenerated(ctx context.Context, jobID string) error {
	const query = `
UPDATE generation_jobs
SET screens_generated = screens_generated + 1, updated_at = $2
WHERE id = $1`
	return r.exec(ctx, query, jobID, time.Now().UTC())
}

// AppendFailedScreen appends one failed-unit entry to the JSONB list in SQL,
// for the same lost-update reason as IncScreensGenerated.
func (r *PGRepo) AppendFailedScreen(ctx context.Context, jobID string, failed FailedScreen) error {
	payload, err := json.Marshal(failed)
	if err != nil {
		return err
	}
	const query = `
UPDATE generation_jobs
SET failed_screens = COALESCE(failed_screens, '[]'::jsonb) || $2::jsonb, updated_at = $3
WHERE id = $1`
	return r.exec(ctx, query, jobID, string(payload), time.Now().UTC())
}

// MarkTerminal writes the terminal status, error, and completion time.
func (r *PGRepo) MarkTerminal(ctx context.Context, jobID, status string, errorMessage *string, completedAt time.Time) error {
	const query = `
UPDATE generation_jobs
SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
WHERE id = $1`
	return r.exec(ctx, query, jobID, status, errorMessage, completedAt)
}

// ListStale returns non-terminal jobs last updated before cutoff, oldest first.
func (r *PGRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status NOT IN ('completed', 'partial', 'failed') AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var failedScreens sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.AppID,
		&job.OwnerID,
		&job.Status,
		&job.CurrentStep,
		&job.ProgressPercentage,
		&job.ScreensTotal,
		&job.ScreensGenerated,
		&failedScreens,
		&errorMessage,
		&startedAt,
		&completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}

	if failedScreens.Valid && failedScreens.String != "" {
		if err := json.Unmarshal([]byte(failedScreens.String), &job.FailedScreens); err != nil {
			return Job{}, fmt.Errorf("job %s failed_screens parse: %w", job.ID, err)
		}
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		job.ErrorMessage = &msg
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

var _ Repo = (*PGRepo)(nil)
