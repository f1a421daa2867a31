package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/usecase"
)

// ---- fakes ----

type fakeJobRepo struct {
	create       func(ctx context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error)
	getByID      func(ctx context.Context, id string) (*domain.ForecastJob, error)
	findActive   func(ctx context.Context, jobType string, targetDate time.Time) (*domain.ForecastJob, error)
	requeue      func(ctx context.Context, id string, runAfter time.Time) error
	claimOne     func(ctx context.Context, workerID string) (*domain.ForecastJob, error)
	markSuccess  func(ctx context.Context, id string) error
	markFailed   func(ctx context.Context, id string, lastError string) error
	requeueStale func(ctx context.Context, cutoff time.Time, limit int) (int, error)
	failStale    func(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

func (r *fakeJobRepo) Create(ctx context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error) {
	return r.create(ctx, job)
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*domain.ForecastJob, error) {
	return r.getByID(ctx, id)
}

func (r *fakeJobRepo) FindActive(ctx context.Context, jobType string, targetDate time.Time) (*domain.ForecastJob, error) {
	return r.findActive(ctx, jobType, targetDate)
}

func (r *fakeJobRepo) ClaimOne(ctx context.Context, workerID string) (*domain.ForecastJob, error) {
	return r.claimOne(ctx, workerID)
}

func (r *fakeJobRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.markSuccess(ctx, id)
}

func (r *fakeJobRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	return r.markFailed(ctx, id, lastError)
}

func (r *fakeJobRepo) Requeue(ctx context.Context, id string, runAfter time.Time) error {
	return r.requeue(ctx, id, runAfter)
}

func (r *fakeJobRepo) RequeueStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return r.requeueStale(ctx, cutoff, limit)
}

func (r *fakeJobRepo) FailStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return r.failStale(ctx, cutoff, limit)
}

// ---- Submit ----

func TestSubmit_NewJob_CreatedWithDefaults(t *testing.T) {
	var captured *domain.ForecastJob
	repo := &fakeJobRepo{
		create: func(_ context.Context, job *domain.ForecastJob) (*domain.ForecastJob, error) {
			captured = job
			out := *job
			out.ID = "job-1"
			out.Status = domain.StatusQueued
			return &out, nil
		},
	}

	result, err := usecase.NewJobUsecase(repo).Submit(context.Background(), usecase.SubmitJobInput{
		JobType:    "daily_tplus1",
		TargetDate: time.Date(2025, 1, 22, 17, 45, 0, 0, time.FixedZone("JST", 9*3600)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Created {
		t.Error("want Created=true for a fresh submission")
	}
	if captured.MaxAttempt != 3 {
		t.Errorf("default max attempt = %d, want 3", captured.MaxAttempt)
	}
	wantDate := time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC)
	if !captured.TargetDate.Equal(wantDate) {
		t.Errorf("target date %v not normalized to %v", captured.TargetDate, wantDate)
	}
}

func TestSubmit_ActiveDuplicate_ReturnsExistingJob(t *testing.T) {
	existing := &domain.ForecastJob{ID: "job-1", JobType: "daily_tplus1", Status: domain.StatusQueued}
	repo := &fakeJobRepo{
		create: func(_ context.Context, _ *domain.ForecastJob) (*domain.ForecastJob, error) {
			return nil, domain.ErrDuplicateJob
		},
		findActive: func(_ context.Context, _ string, _ time.Time) (*domain.ForecastJob, error) {
			return existing, nil
		},
	}

	result, err := usecase.NewJobUsecase(repo).Submit(context.Background(), usecase.SubmitJobInput{
		JobType:    "daily_tplus1",
		TargetDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Created {
		t.Error("want Created=false for a duplicate submission")
	}
	if result.Job.ID != existing.ID {
		t.Errorf("returned job %s, want the existing active job %s", result.Job.ID, existing.ID)
	}
}

func TestSubmit_DuplicateVanishedBeforeLookup_SurfacesDuplicate(t *testing.T) {
	repo := &fakeJobRepo{
		create: func(_ context.Context, _ *domain.ForecastJob) (*domain.ForecastJob, error) {
			return nil, domain.ErrDuplicateJob
		},
		findActive: func(_ context.Context, _ string, _ time.Time) (*domain.ForecastJob, error) {
			return nil, domain.ErrJobNotFound
		},
	}

	_, err := usecase.NewJobUsecase(repo).Submit(context.Background(), usecase.SubmitJobInput{
		JobType:    "daily_tplus1",
		TargetDate: time.Now(),
	})
	if !errors.Is(err, domain.ErrDuplicateJob) {
		t.Errorf("want ErrDuplicateJob, got %v", err)
	}
}

func TestSubmit_MissingJobType_Rejected(t *testing.T) {
	repo := &fakeJobRepo{}

	_, err := usecase.NewJobUsecase(repo).Submit(context.Background(), usecase.SubmitJobInput{
		TargetDate: time.Now(),
	})
	if err == nil {
		t.Fatal("want error for missing job type")
	}
}

func TestSubmit_RepoError_Propagates(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeJobRepo{
		create: func(_ context.Context, _ *domain.ForecastJob) (*domain.ForecastJob, error) {
			return nil, repoErr
		},
	}

	_, err := usecase.NewJobUsecase(repo).Submit(context.Background(), usecase.SubmitJobInput{
		JobType:    "daily_tplus1",
		TargetDate: time.Now(),
	})
	if !errors.Is(err, repoErr) {
		t.Errorf("want wrapped repo error, got %v", err)
	}
}

// ---- Requeue ----

func TestRequeue_PropagatesNotRetryable(t *testing.T) {
	repo := &fakeJobRepo{
		requeue: func(_ context.Context, _ string, _ time.Time) error {
			return domain.ErrNotRetryable
		},
	}

	err := usecase.NewJobUsecase(repo).Requeue(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrNotRetryable) {
		t.Errorf("want ErrNotRetryable, got %v", err)
	}
}
