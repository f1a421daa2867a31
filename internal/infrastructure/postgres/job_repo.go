package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wastewise/taskcore/internal/domain"
)

const jobColumns = `id, job_type, target_date, status, run_after,
		locked_at, locked_by, attempt, max_attempt, input_snapshot,
		last_error, created_at, updated_at, started_at, finished_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a queued job after verifying no active duplicate exists.
// A transaction-scoped advisory lock on (job_type, target_date) serializes
// concurrent submitters; a partial unique index cannot express the guard
// because rows leave the active set as their status changes.
func (r *JobRepository) Create(ctx context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	lockKey := fmt.Sprintf("forecast_job:%s:%s", job.JobType, job.TargetDate.Format("2006-01-02"))
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}

	var existingID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM forecast_jobs
		WHERE job_type = $1 AND target_date = $2 AND status IN ('queued', 'running')
		LIMIT 1`,
		job.JobType, job.TargetDate,
	).Scan(&existingID)
	if err == nil {
		err = domain.ErrDuplicateJob
		return nil, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check active job: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO forecast_jobs (
			job_type, target_date, status, run_after, attempt, max_attempt, input_snapshot
		) VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING `+jobColumns,
		job.JobType, job.TargetDate, domain.StatusQueued, job.RunAfter,
		job.MaxAttempt, job.InputSnapshot,
	)

	created, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ForecastJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM forecast_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *JobRepository) FindActive(ctx context.Context, jobType string, targetDate time.Time) (*domain.ForecastJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM forecast_jobs
		WHERE job_type = $1 AND target_date = $2 AND status IN ('queued', 'running')
		LIMIT 1`,
		jobType, targetDate)
	return scanJob(row)
}

// ClaimOne hands the oldest eligible queued job to this worker.
// FOR UPDATE SKIP LOCKED prevents double-claims across workers without
// blocking on a peer's row lock.
func (r *JobRepository) ClaimOne(ctx context.Context, workerID string) (*domain.ForecastJob, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE forecast_jobs
		SET    status     = 'running',
		       attempt    = attempt + 1,
		       locked_at  = NOW(),
		       locked_by  = $1,
		       started_at = NOW(),
		       updated_at = NOW()
		WHERE id = (
			SELECT id FROM forecast_jobs
			WHERE  status = 'queued'
			  AND  (run_after IS NULL OR run_after <= NOW())
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		workerID)

	job, err := scanJob(row)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, domain.ErrNoJobAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_jobs
		SET    status      = 'succeeded',
		       finished_at = NOW(),
		       locked_at   = NULL,
		       locked_by   = NULL,
		       updated_at  = NOW()
		WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_jobs
		SET    status      = 'failed',
		       last_error  = $2,
		       finished_at = NOW(),
		       locked_at   = NULL,
		       locked_by   = NULL,
		       updated_at  = NOW()
		WHERE id = $1 AND status = 'running'`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) Requeue(ctx context.Context, id string, runAfter time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_jobs
		SET    status     = 'queued',
		       run_after  = $2,
		       updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND attempt < max_attempt`,
		id, runAfter)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish why the guarded update matched nothing.
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusFailed {
		return domain.ErrInvalidStatus
	}
	return domain.ErrNotRetryable
}

// RequeueStale returns running jobs with an expired lease to the queue.
// The claim already charged the attempt, so the counter is left alone.
func (r *JobRepository) RequeueStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_jobs
		SET    status     = 'queued',
		       last_error = 'worker lease expired',
		       run_after  = NULL,
		       locked_at  = NULL,
		       locked_by  = NULL,
		       updated_at = NOW()
		WHERE id IN (
			SELECT id FROM forecast_jobs
			WHERE  status    = 'running'
			  AND  locked_at < $1
			  AND  attempt   < max_attempt
			ORDER BY locked_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

func (r *JobRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE forecast_jobs
		SET    status      = 'failed',
		       last_error  = 'worker lease expired: max attempts exhausted',
		       finished_at = NOW(),
		       locked_at   = NULL,
		       locked_by   = NULL,
		       updated_at  = NOW()
		WHERE id IN (
			SELECT id FROM forecast_jobs
			WHERE  status    = 'running'
			  AND  locked_at < $1
			  AND  attempt   >= max_attempt
			ORDER BY locked_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.ForecastJob, error) {
	var j domain.ForecastJob
	err := row.Scan(
		&j.ID, &j.JobType, &j.TargetDate, &j.Status, &j.RunAfter,
		&j.LockedAt, &j.LockedBy, &j.Attempt, &j.MaxAttempt, &j.InputSnapshot,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
