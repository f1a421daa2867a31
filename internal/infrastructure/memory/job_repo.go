// Package memory provides in-memory repository implementations used by
// tests and local development. They mirror the postgres semantics, including
// the single-claimer guarantee, behind a mutex instead of row locks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wastewise/taskcore/internal/domain"
)

type JobRepository struct {
	mu    sync.Mutex
	jobs  map[string]*domain.ForecastJob
	order []string // insertion order, oldest first
	now   func() time.Time
}

func NewJobRepository() *JobRepository {
	return NewJobRepositoryWithClock(time.Now)
}

// NewJobRepositoryWithClock lets tests pin the clock that claim eligibility
// and audit timestamps are computed against.
func NewJobRepositoryWithClock(now func() time.Time) *JobRepository {
	return &JobRepository{
		jobs: make(map[string]*domain.ForecastJob),
		now:  now,
	}
}

func (r *JobRepository) Create(_ context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		existing := r.jobs[id]
		if existing.JobType == job.JobType &&
			sameDate(existing.TargetDate, job.TargetDate) &&
			existing.IsActive() {
			return nil, domain.ErrDuplicateJob
		}
	}

	now := r.now()
	created := *job
	created.ID = uuid.NewString()
	created.Status = domain.StatusQueued
	created.Attempt = 0
	created.CreatedAt = now
	created.UpdatedAt = now

	r.jobs[created.ID] = &created
	r.order = append(r.order, created.ID)

	out := created
	return &out, nil
}

func (r *JobRepository) GetByID(_ context.Context, id string) (*domain.ForecastJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (r *JobRepository) FindActive(_ context.Context, jobType string, targetDate time.Time) (*domain.ForecastJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		job := r.jobs[id]
		if job.JobType == jobType && sameDate(job.TargetDate, targetDate) && job.IsActive() {
			out := *job
			return &out, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (r *JobRepository) ClaimOne(_ context.Context, workerID string) (*domain.ForecastJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Status != domain.StatusQueued {
			continue
		}
		if job.RunAfter != nil && job.RunAfter.After(now) {
			continue
		}

		job.Status = domain.StatusRunning
		job.Attempt++
		job.LockedAt = timePtr(now)
		job.LockedBy = &workerID
		job.StartedAt = timePtr(now)
		job.UpdatedAt = now

		out := *job
		return &out, nil
	}
	return nil, domain.ErrNoJobAvailable
}

func (r *JobRepository) MarkSucceeded(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != domain.StatusRunning {
		return domain.ErrJobNotFound
	}

	now := r.now()
	job.Status = domain.StatusSucceeded
	job.FinishedAt = timePtr(now)
	job.LockedAt = nil
	job.LockedBy = nil
	job.UpdatedAt = now
	return nil
}

func (r *JobRepository) MarkFailed(_ context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != domain.StatusRunning {
		return domain.ErrJobNotFound
	}

	now := r.now()
	job.Status = domain.StatusFailed
	job.LastError = &lastError
	job.FinishedAt = timePtr(now)
	job.LockedAt = nil
	job.LockedBy = nil
	job.UpdatedAt = now
	return nil
}

func (r *JobRepository) Requeue(_ context.Context, id string, runAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.StatusFailed {
		return domain.ErrInvalidStatus
	}
	if !job.CanRetry() {
		return domain.ErrNotRetryable
	}

	job.Status = domain.StatusQueued
	job.RunAfter = timePtr(runAfter)
	job.UpdatedAt = r.now()
	return nil
}

func (r *JobRepository) RequeueStale(_ context.Context, staleCutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	for _, id := range r.order {
		if count >= limit {
			break
		}
		job := r.jobs[id]
		if job.Status != domain.StatusRunning || job.LockedAt == nil || !job.LockedAt.Before(staleCutoff) {
			continue
		}
		if !job.CanRetry() {
			continue
		}

		lastError := "worker lease expired"
		job.Status = domain.StatusQueued
		job.LastError = &lastError
		job.RunAfter = nil
		job.LockedAt = nil
		job.LockedBy = nil
		job.UpdatedAt = r.now()
		count++
	}
	return count, nil
}

func (r *JobRepository) FailStale(_ context.Context, staleCutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	for _, id := range r.order {
		if count >= limit {
			break
		}
		job := r.jobs[id]
		if job.Status != domain.StatusRunning || job.LockedAt == nil || !job.LockedAt.Before(staleCutoff) {
			continue
		}
		if job.CanRetry() {
			continue
		}

		now := r.now()
		lastError := "worker lease expired: max attempts exhausted"
		job.Status = domain.StatusFailed
		job.LastError = &lastError
		job.FinishedAt = timePtr(now)
		job.LockedAt = nil
		job.LockedBy = nil
		job.UpdatedAt = now
		count++
	}
	return count, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func timePtr(t time.Time) *time.Time { return &t }
