package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/metrics"
	"github.com/wastewise/taskcore/internal/repository"
)

// Dispatcher drives one delivery batch per invocation. Per-item failures are
// classified and recorded; nothing aborts the batch.
type Dispatcher struct {
	outbox      repository.OutboxRepository
	resolver    RecipientResolver
	prefs       PreferencePort // nil = no opt-out checks
	sender      ChannelSender
	limiter     RateLimiter // nil = unlimited
	maxAttempts int
	interval    time.Duration
	batchLimit  int
	logger      *slog.Logger
}

func NewDispatcher(
	outbox repository.OutboxRepository,
	resolver RecipientResolver,
	prefs PreferencePort,
	sender ChannelSender,
	limiter RateLimiter,
	maxAttempts int,
	interval time.Duration,
	batchLimit int,
	logger *slog.Logger,
) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		outbox:      outbox,
		resolver:    resolver,
		prefs:       prefs,
		sender:      sender,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		interval:    interval,
		batchLimit:  batchLimit,
		logger:      logger.With("component", "dispatcher"),
	}
}

// Start runs Dispatch on a ticker until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval, "batch_limit", d.batchLimit)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, time.Now(), d.batchLimit); err != nil {
				d.logger.Error("dispatch batch", "error", err)
			}
		}
	}
}

// Dispatch delivers up to limit ready outbox items and returns the number
// sent. The only error returned is a failure to read the batch; everything
// after that is captured per item.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time, limit int) (int, error) {
	start := time.Now()
	items, err := d.outbox.ListPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	var sent int
	for _, item := range items {
		if d.dispatchOne(ctx, item, now) {
			sent++
		}
	}

	metrics.DispatchBatchDuration.Observe(time.Since(start).Seconds())
	d.logger.Info("dispatch batch done", "listed", len(items), "sent", sent)
	return sent, nil
}

// dispatchOne reports whether the item was sent.
func (d *Dispatcher) dispatchOne(ctx context.Context, item *domain.OutboxItem, now time.Time) bool {
	log := d.logger.With("notification_id", item.ID, "channel", item.Channel)

	if d.prefs != nil {
		prefs, err := d.prefs.GetForRecipient(ctx, item.RecipientKey)
		if err != nil {
			// Preference lookup trouble is transient; the item stays eligible.
			d.recordFailure(ctx, item, Temporary("load preferences", err), now, log)
			return false
		}
		if !prefs.Allows(item.Channel) {
			if err := d.outbox.MarkSkipped(ctx, item.ID); err != nil {
				log.Error("mark skipped", "error", err)
			}
			metrics.NotificationsTotal.WithLabelValues(string(item.Channel), "skipped").Inc()
			log.Info("notification skipped, recipient opted out")
			return false
		}
	}

	address, err := d.resolver.Resolve(ctx, item.RecipientKey, item.Channel)
	if err != nil {
		d.recordFailure(ctx, item, Temporary("resolve recipient", err), now, log)
		return false
	}
	if address == "" {
		d.recordFailure(ctx, item, Permanent("no address for recipient", nil), now, log)
		return false
	}

	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, string(item.Channel))
		if err != nil {
			log.Warn("rate limiter unavailable, sending anyway", "error", err)
		} else if !allowed {
			// Not a failure: the item simply stays pending for the next batch.
			metrics.NotificationsTotal.WithLabelValues(string(item.Channel), "throttled").Inc()
			return false
		}
	}

	if err := d.sender.Send(ctx, item.Channel, item.Payload, address); err != nil {
		d.recordFailure(ctx, item, err, now, log)
		return false
	}

	if err := d.outbox.MarkSent(ctx, item.ID, now); err != nil {
		log.Error("mark sent", "error", err)
		return false
	}
	metrics.NotificationsTotal.WithLabelValues(string(item.Channel), "sent").Inc()
	return true
}

func (d *Dispatcher) recordFailure(ctx context.Context, item *domain.OutboxItem, sendErr error, now time.Time, log *slog.Logger) {
	failureType := Classify(sendErr)

	// The outbox row has no attempt ceiling of its own; a temporary failure
	// that keeps recurring is escalated to permanent here so classification
	// stays the single terminal path.
	if failureType == domain.FailureTemporary && item.RetryCount+1 >= d.maxAttempts {
		failureType = domain.FailurePermanent
	}

	if err := d.outbox.MarkFailed(ctx, item.ID, sendErr.Error(), failureType, now); err != nil {
		log.Error("mark failed", "error", err)
		return
	}

	metrics.NotificationsTotal.WithLabelValues(string(item.Channel), "failed").Inc()
	log.Warn("notification send failed",
		"error", sendErr,
		"failure_type", failureType,
		"retry_count", item.RetryCount+1,
	)
}
