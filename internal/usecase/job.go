package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/repository"
)

const defaultMaxAttempt = 3

type JobUsecase struct {
	repo repository.JobRepository
}

func NewJobUsecase(repo repository.JobRepository) *JobUsecase {
	return &JobUsecase{repo: repo}
}

type SubmitJobInput struct {
	JobType       string
	TargetDate    time.Time
	RunAfter      *time.Time
	InputSnapshot json.RawMessage
	MaxAttempt    int
}

type SubmitJobResult struct {
	Job *domain.ForecastJob
	// Created distinguishes a fresh submission from an idempotent hit on an
	// already-active job.
	Created bool
}

// Submit creates the job, or returns the active one for the same
// (job_type, target_date) when a duplicate submission races in. Callers are
// expected to treat both outcomes as "scheduled".
func (u *JobUsecase) Submit(ctx context.Context, input SubmitJobInput) (SubmitJobResult, error) {
	if input.JobType == "" {
		return SubmitJobResult{}, fmt.Errorf("%w: job type is required", domain.ErrInvalidStatus)
	}
	if input.MaxAttempt == 0 {
		input.MaxAttempt = defaultMaxAttempt
	}

	job := &domain.ForecastJob{
		JobType:       input.JobType,
		TargetDate:    normalizeDate(input.TargetDate),
		RunAfter:      input.RunAfter,
		MaxAttempt:    input.MaxAttempt,
		InputSnapshot: input.InputSnapshot,
	}

	created, err := u.repo.Create(ctx, job)
	if err == nil {
		return SubmitJobResult{Job: created, Created: true}, nil
	}
	if !errors.Is(err, domain.ErrDuplicateJob) {
		return SubmitJobResult{}, fmt.Errorf("create job: %w", err)
	}

	existing, err := u.repo.FindActive(ctx, job.JobType, job.TargetDate)
	if err != nil {
		// The duplicate finished between the two calls; surface the duplicate
		// error and let the caller resubmit.
		if errors.Is(err, domain.ErrJobNotFound) {
			return SubmitJobResult{}, domain.ErrDuplicateJob
		}
		return SubmitJobResult{}, fmt.Errorf("find active job: %w", err)
	}
	return SubmitJobResult{Job: existing, Created: false}, nil
}

func (u *JobUsecase) GetByID(ctx context.Context, id string) (*domain.ForecastJob, error) {
	job, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Requeue is the operator retry path for a failed job with attempts left.
func (u *JobUsecase) Requeue(ctx context.Context, id string) error {
	if err := u.repo.Requeue(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// normalizeDate strips the time component; the dedup key is a calendar date.
func normalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
