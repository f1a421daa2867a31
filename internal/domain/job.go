package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrDuplicateJob   = errors.New("active job already exists for this type and target date")
	ErrNoJobAvailable = errors.New("no eligible job to claim")
	ErrNotRetryable   = errors.New("job has no attempts left")
	ErrInvalidStatus  = errors.New("invalid job status")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ForecastJob is one unit of forecast computation for a collection area and
// target date. At most one job per (job_type, target_date) may be active
// (queued or running) at a time; the repository enforces this on create.
type ForecastJob struct {
	ID         string
	JobType    string    // e.g. "daily_tplus1"
	TargetDate time.Time // date component only, UTC

	Status   Status
	RunAfter *time.Time // nil = claimable immediately

	LockedAt *time.Time // set while running
	LockedBy *string    // worker ID holding the claim

	Attempt    int // incremented on each claim, never decremented
	MaxAttempt int

	InputSnapshot json.RawMessage // copied at creation, immutable
	LastError     *string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func (j *ForecastJob) IsQueued() bool    { return j.Status == StatusQueued }
func (j *ForecastJob) IsRunning() bool   { return j.Status == StatusRunning }
func (j *ForecastJob) IsSucceeded() bool { return j.Status == StatusSucceeded }
func (j *ForecastJob) IsFailed() bool    { return j.Status == StatusFailed }

// CanRetry reports whether a failed run leaves the job eligible for requeue.
func (j *ForecastJob) CanRetry() bool { return j.Attempt < j.MaxAttempt }

// IsTerminal reports whether the job can never run again: succeeded, or
// failed with the retry budget spent.
func (j *ForecastJob) IsTerminal() bool {
	return j.Status == StatusSucceeded || (j.Status == StatusFailed && !j.CanRetry())
}

// IsActive reports whether the job counts against the one-active-job
// uniqueness guard for its (job_type, target_date) pair.
func (j *ForecastJob) IsActive() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}
