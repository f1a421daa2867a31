// Package worker hosts the background loops of the task core: the claim
// loop executing forecast jobs, the reaper recovering expired leases, and
// the cron submitter creating the daily jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/metrics"
	"github.com/wastewise/taskcore/internal/repository"
	"github.com/wastewise/taskcore/internal/retry"
)

// Runner executes one claimed job. Satisfied by *Executor; tests substitute
// a closure.
type Runner interface {
	Run(ctx context.Context, job *domain.ForecastJob) ExecutionResult
}

type Worker struct {
	id           string
	repo         repository.JobRepository
	runner       Runner
	policy       retry.Policy
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
	sem          chan struct{}
}

func New(
	repo repository.JobRepository,
	runner Runner,
	policy retry.Policy,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Worker{
		id:           id,
		repo:         repo,
		runner:       runner,
		policy:       policy,
		logger:       logger.With("worker_id", id),
		pollInterval: pollInterval,
		concurrency:  concurrency,
		sem:          make(chan struct{}, concurrency),
	}
}

func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			metrics.WorkerShutdownsTotal.Inc()
			w.logger.Info("worker shut down")
			return
		case <-ticker.C:
			w.claimBatch(ctx)
		}
	}
}

// claimBatch claims one job per free slot. Each claim is an independent
// single-row transaction, so a slow job never holds a lock that would make
// peers wait.
func (w *Worker) claimBatch(ctx context.Context) {
	for len(w.sem) < cap(w.sem) {
		job, err := w.repo.ClaimOne(ctx, w.id)
		if errors.Is(err, domain.ErrNoJobAvailable) {
			return
		}
		if err != nil {
			w.logger.Error("claim job", "error", err)
			return
		}

		w.sem <- struct{}{}
		go func(j *domain.ForecastJob) {
			metrics.JobsInFlight.Inc()
			defer metrics.JobsInFlight.Dec()
			defer func() { <-w.sem }()
			w.runJob(ctx, j)
		}(job)
	}
}

func (w *Worker) runJob(ctx context.Context, job *domain.ForecastJob) {
	metrics.JobPickupLatency.Observe(time.Since(job.CreatedAt).Seconds())

	w.logger.Info("executing job",
		"job_id", job.ID,
		"job_type", job.JobType,
		"target_date", job.TargetDate.Format("2006-01-02"),
		"attempt", job.Attempt,
	)

	result := w.runner.Run(ctx, job)

	if result.Err == nil {
		metrics.JobExecutionDuration.WithLabelValues("success").Observe(result.Duration.Seconds())
		metrics.JobsCompletedTotal.WithLabelValues("success").Inc()
		if err := w.repo.MarkSucceeded(ctx, job.ID); err != nil {
			w.logger.Error("mark job succeeded", "job_id", job.ID, "error", err)
		}
		w.logger.Info("job succeeded", "job_id", job.ID, "duration", result.Duration)
		return
	}

	errMsg := result.Err.Error()
	metrics.JobExecutionDuration.WithLabelValues("failure").Observe(result.Duration.Seconds())

	if err := w.repo.MarkFailed(ctx, job.ID, errMsg); err != nil {
		// If this write fails the job stays running; the reaper requeues it
		// once the lease expires.
		w.logger.Error("mark job failed", "job_id", job.ID, "error", err)
		return
	}

	if job.CanRetry() {
		retryAt := time.Now().Add(w.policy.Delay(job.Attempt))
		if err := w.repo.Requeue(ctx, job.ID, retryAt); err != nil {
			w.logger.Error("requeue job", "job_id", job.ID, "error", err)
		}
		metrics.JobsCompletedTotal.WithLabelValues("retry").Inc()
		w.logger.Warn("job failed, will retry",
			"job_id", job.ID,
			"error", errMsg,
			"attempt", job.Attempt,
			"max_attempt", job.MaxAttempt,
			"retry_at", retryAt,
		)
	} else {
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		w.logger.Warn("job permanently failed", "job_id", job.ID, "error", errMsg)
	}
}
