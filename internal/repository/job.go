package repository

import (
	"context"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

// Use cases and workers depend on this interface, not a concrete store.
// Postgres backs production; the memory implementation backs tests and
// local development. Both are selected at process wiring time.
type JobRepository interface {
	// Create persists a new queued job. Returns domain.ErrDuplicateJob when
	// an active job (queued or running) already exists for the same
	// (job_type, target_date); the check and insert are atomic, so two
	// concurrent submitters cannot both succeed.
	Create(ctx context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error)

	GetByID(ctx context.Context, id string) (*domain.ForecastJob, error)

	// FindActive returns the queued-or-running job for the pair, or
	// domain.ErrJobNotFound. Used for submit-or-return-existing semantics.
	FindActive(ctx context.Context, jobType string, targetDate time.Time) (*domain.ForecastJob, error)

	// ClaimOne atomically hands the oldest eligible queued job to the caller:
	// status becomes running, attempt increments, locked_at/locked_by are set.
	// Rows locked by a concurrent claimer are skipped, never awaited.
	// Returns domain.ErrNoJobAvailable when nothing is eligible.
	ClaimOne(ctx context.Context, workerID string) (*domain.ForecastJob, error)

	// MarkSucceeded transitions running → succeeded and sets finished_at.
	MarkSucceeded(ctx context.Context, id string) error

	// MarkFailed transitions running → failed, recording last_error and
	// finished_at. The job stays failed until explicitly requeued.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Requeue returns a failed job with attempts remaining to queued, not
	// claimable before runAfter. Returns domain.ErrNotRetryable when the
	// retry budget is spent and domain.ErrInvalidStatus when the job is not
	// failed. The attempt counter is untouched; ClaimOne owns it.
	Requeue(ctx context.Context, id string, runAfter time.Time) error

	// Reaper methods recover jobs whose worker died mid-run. A running job
	// with locked_at older than the cutoff is presumed abandoned.
	RequeueStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}
