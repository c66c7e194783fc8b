package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pedramamini/pedster/errors"
)

const jobColumns = `id, pipeline, payload, interval_seconds, next_run_at,
       last_run_at, last_error, state, created_at, updated_at`

// Store persists scheduled jobs in the schedule catalog. It is the
// sole writer of the scheduled_jobs table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job. A missing ID is assigned, a missing
// state defaults to active, and a missing next run fires immediately.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.State == "" {
		job.State = StateActive
	}
	if job.IntervalSeconds <= 0 {
		return errors.Newf("job %s has non-positive interval", job.ID)
	}

	now := time.Now()
	nextRun := now
	if job.NextRunAt != nil {
		nextRun = *job.NextRunAt
	}
	payload := "{}"
	if len(job.Payload) > 0 {
		payload = string(job.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (
			id, pipeline, payload, interval_seconds, next_run_at,
			last_error, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)`,
		job.ID, job.Pipeline, payload, job.IntervalSeconds,
		nextRun.Format(time.RFC3339), job.State,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to create scheduled job for %s", job.Pipeline)
	}
	return nil
}

// GetJob retrieves one job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("scheduled job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get scheduled job")
	}
	return job, nil
}

// ListJobs returns all non-deleted jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE state != ?
		ORDER BY created_at DESC`, StateDeleted)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduled jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobsDue returns active jobs whose next run is at or before now,
// oldest due first. Capped so one slow batch cannot starve the ticker.
func (s *Store) ListJobsDue(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE state = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT 100`, StateActive, now.Format(time.RFC3339))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// RecordRun advances the job after an execution attempt. runErr empty
// means success; either way next_run_at moves forward so a failing job
// retries on its own cadence rather than every tick.
func (s *Store) RecordRun(ctx context.Context, id string, ranAt, nextRun time.Time, runErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET last_run_at = ?, next_run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		ranAt.Format(time.RFC3339), nextRun.Format(time.RFC3339),
		runErr, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrap(err, "failed to record run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("scheduled job %s", id)
	}
	return nil
}

// SetState transitions a job between active, paused, and deleted.
func (s *Store) SetState(ctx context.Context, id, state string) error {
	switch state {
	case StateActive, StatePaused, StateDeleted:
	default:
		return errors.Newf("invalid job state %q", state)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrap(err, "failed to set job state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("scheduled job %s", id)
	}
	return nil
}

// CountJobs reports how many non-deleted jobs exist, for seeding.
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_jobs WHERE state != ?`, StateDeleted).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count scheduled jobs")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var payload, createdAt, updatedAt string
	var nextRunAt, lastRunAt sql.NullString

	err := row.Scan(&job.ID, &job.Pipeline, &payload, &job.IntervalSeconds,
		&nextRunAt, &lastRunAt, &job.LastError, &job.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Payload = []byte(payload)
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "bad created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "bad updated_at for job %s", job.ID)
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "bad next_run_at for job %s", job.ID)
		}
		job.NextRunAt = &t
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "bad last_run_at for job %s", job.ID)
		}
		job.LastRunAt = &t
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduled job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
