package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/infrastructure/memory"
	"github.com/wastewise/taskcore/internal/retry"
	"github.com/wastewise/taskcore/internal/worker"
)

type fakeRunner struct {
	run func(ctx context.Context, job *domain.ForecastJob) worker.ExecutionResult
}

func (r *fakeRunner) Run(ctx context.Context, job *domain.ForecastJob) worker.ExecutionResult {
	return r.run(ctx, job)
}

func submitJob(t *testing.T, repo *memory.JobRepository, maxAttempt int) *domain.ForecastJob {
	t.Helper()
	job, err := repo.Create(context.Background(), &domain.ForecastJob{
		JobType:    "daily_tplus1",
		TargetDate: time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC),
		MaxAttempt: maxAttempt,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// waitFor polls until cond is satisfied or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func startWorker(t *testing.T, repo *memory.JobRepository, runner worker.Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(repo, runner, retry.NewPolicy(time.Millisecond), slog.Default(), 10*time.Millisecond, 2)
	go w.Start(ctx)
	return cancel
}

func TestWorker_SuccessfulRun_MarksJobSucceeded(t *testing.T) {
	repo := memory.NewJobRepository()
	job := submitJob(t, repo, 3)

	runner := &fakeRunner{
		run: func(_ context.Context, _ *domain.ForecastJob) worker.ExecutionResult {
			return worker.ExecutionResult{Duration: time.Millisecond}
		},
	}
	cancel := startWorker(t, repo, runner)
	defer cancel()

	waitFor(t, func() bool {
		got, err := repo.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.StatusSucceeded
	})

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set on success")
	}
	if got.LockedAt != nil || got.LockedBy != nil {
		t.Error("lock fields must be cleared on completion")
	}
}

func TestWorker_FailingRun_RetriesUntilBudgetSpent(t *testing.T) {
	repo := memory.NewJobRepository()
	job := submitJob(t, repo, 2)

	runner := &fakeRunner{
		run: func(_ context.Context, _ *domain.ForecastJob) worker.ExecutionResult {
			return worker.ExecutionResult{Err: errors.New("model diverged"), Duration: time.Millisecond}
		},
	}
	cancel := startWorker(t, repo, runner)
	defer cancel()

	waitFor(t, func() bool {
		got, err := repo.GetByID(context.Background(), job.ID)
		return err == nil && got.IsTerminal()
	})

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Attempt != 2 {
		t.Errorf("attempt = %d, want the full budget of 2", got.Attempt)
	}
	if got.LastError == nil || *got.LastError != "model diverged" {
		t.Errorf("last_error = %v, want the run error", got.LastError)
	}
}
