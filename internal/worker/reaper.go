package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/wastewise/taskcore/internal/metrics"
	"github.com/wastewise/taskcore/internal/repository"
)

const reapBatchLimit = 100

// Reaper recovers jobs abandoned by a crashed worker: a running job whose
// locked_at is older than the lease timeout is requeued while attempts
// remain, or failed terminally once the budget is spent.
type Reaper struct {
	repo         repository.JobRepository
	logger       *slog.Logger
	interval     time.Duration
	leaseTimeout time.Duration
}

func NewReaper(repo repository.JobRepository, logger *slog.Logger, interval, leaseTimeout time.Duration) *Reaper {
	return &Reaper{
		repo:         repo,
		logger:       logger.With("component", "reaper"),
		interval:     interval,
		leaseTimeout: leaseTimeout,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "lease_timeout", r.leaseTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	start := time.Now()
	staleCutoff := time.Now().Add(-r.leaseTimeout)

	requeued, err := r.repo.RequeueStale(ctx, staleCutoff, reapBatchLimit)
	if err != nil {
		r.logger.Error("requeue stale jobs", "error", err)
	} else if requeued > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("requeued").Add(float64(requeued))
		r.logger.Warn("requeued stale jobs", "count", requeued)
	}

	failed, err := r.repo.FailStale(ctx, staleCutoff, reapBatchLimit)
	if err != nil {
		r.logger.Error("fail stale jobs", "error", err)
	} else if failed > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("failed").Add(float64(failed))
		r.logger.Warn("permanently failed stale jobs", "count", failed)
	}

	metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds())
}
