package repository

import (
	"context"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

type OutboxRepository interface {
	// Enqueue bulk-inserts items with status=pending. IDs and created_at are
	// filled in on the passed items.
	Enqueue(ctx context.Context, items []*domain.OutboxItem) error

	GetByID(ctx context.Context, id string) (*domain.OutboxItem, error)

	// ListPending returns items ready to send at now, oldest first, capped at
	// limit: deliverable (pending, or failed without a PERMANENT
	// classification), past scheduled_at, and past next_retry_at.
	ListPending(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxItem, error)

	// MarkSent finalizes a delivery. The item never reappears in ListPending.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed records a send failure: status=failed, retry_count+1,
	// last_error and failure_type set, and next_retry_at computed from the
	// injected retry policy (nil for PERMANENT failures).
	MarkFailed(ctx context.Context, id string, sendErr string, failureType domain.FailureType, now time.Time) error

	// MarkSkipped records a recipient opt-out. Skipped items are terminal and
	// are never retried.
	MarkSkipped(ctx context.Context, id string) error
}
