package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/retry"
)

const outboxColumns = `id, channel, status, recipient_key, payload,
		scheduled_at, retry_count, next_retry_at, last_error, failure_type,
		created_at, sent_at`

type OutboxRepository struct {
	pool   *pgxpool.Pool
	policy retry.Policy
}

func NewOutboxRepository(pool *pgxpool.Pool, policy retry.Policy) *OutboxRepository {
	return &OutboxRepository{pool: pool, policy: policy}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, items []*domain.OutboxItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, item := range items {
		var payload []byte
		payload, err = json.Marshal(item.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO notification_outbox (
				channel, status, recipient_key, payload, scheduled_at, retry_count
			) VALUES ($1, $2, $3, $4, $5, 0)
			RETURNING id, created_at`,
			item.Channel, domain.OutboxPending, item.RecipientKey, payload, item.ScheduledAt,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox item: %w", err)
		}
		item.Status = domain.OutboxPending
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboxItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+outboxColumns+` FROM notification_outbox WHERE id = $1`, id)
	return scanOutboxItem(row)
}

// ListPending selects deliverable items: pending, or failed with a
// non-permanent classification, gated by scheduled_at and next_retry_at.
// Permanently failed items are dead-lettered in place and never returned.
func (r *OutboxRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM notification_outbox
		WHERE  status IN ('pending', 'failed')
		  AND  (failure_type IS NULL OR failure_type <> 'PERMANENT')
		  AND  (scheduled_at IS NULL OR scheduled_at <= $1)
		  AND  (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var items []*domain.OutboxItem
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent', sent_at = $2
		WHERE id = $1 AND status IN ('pending', 'failed')`,
		id, sentAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// MarkFailed increments the retry counter under a row lock so concurrent
// dispatchers cannot double-charge an attempt, and schedules the next try
// from the retry policy. PERMANENT failures get no next_retry_at. Sent and
// skipped rows are final: a racing dispatcher's late failure report finds
// no updatable row, same convention as MarkSent.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, sendErr string, failureType domain.FailureType, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var retryCount int
	err = tx.QueryRow(ctx, `
		SELECT retry_count FROM notification_outbox
		WHERE id = $1 AND status IN ('pending', 'failed')
		FOR UPDATE`,
		id).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrNotificationNotFound
		}
		return err
	}

	nextRetryAt := r.policy.NextRetryAt(retryCount+1, failureType, now)

	_, err = tx.Exec(ctx, `
		UPDATE notification_outbox
		SET    status        = 'failed',
		       retry_count   = retry_count + 1,
		       last_error    = $2,
		       failure_type  = $3,
		       next_retry_at = $4
		WHERE id = $1 AND status IN ('pending', 'failed')`,
		id, sendErr, failureType, nextRetryAt)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkSkipped(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET status = 'skipped' WHERE id = $1 AND status IN ('pending', 'failed')`,
		id)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func scanOutboxItem(row rowScanner) (*domain.OutboxItem, error) {
	var (
		item    domain.OutboxItem
		payload []byte
	)
	err := row.Scan(
		&item.ID, &item.Channel, &item.Status, &item.RecipientKey, &payload,
		&item.ScheduledAt, &item.RetryCount, &item.NextRetryAt, &item.LastError,
		&item.FailureType, &item.CreatedAt, &item.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("scan outbox item: %w", err)
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &item, nil
}
