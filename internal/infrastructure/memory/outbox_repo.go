package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/retry"
)

type OutboxRepository struct {
	mu     sync.Mutex
	items  map[string]*domain.OutboxItem
	order  []string
	policy retry.Policy
	now    func() time.Time
}

func NewOutboxRepository(policy retry.Policy) *OutboxRepository {
	return NewOutboxRepositoryWithClock(policy, time.Now)
}

func NewOutboxRepositoryWithClock(policy retry.Policy, now func() time.Time) *OutboxRepository {
	return &OutboxRepository{
		items:  make(map[string]*domain.OutboxItem),
		policy: policy,
		now:    now,
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, items []*domain.OutboxItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, item := range items {
		item.ID = uuid.NewString()
		item.Status = domain.OutboxPending
		item.RetryCount = 0
		item.CreatedAt = now

		stored := *item
		r.items[stored.ID] = &stored
		r.order = append(r.order, stored.ID)
	}
	return nil
}

func (r *OutboxRepository) GetByID(_ context.Context, id string) (*domain.OutboxItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	out := *item
	return &out, nil
}

func (r *OutboxRepository) ListPending(_ context.Context, now time.Time, limit int) ([]*domain.OutboxItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []*domain.OutboxItem
	for _, id := range r.order {
		if len(items) >= limit {
			break
		}
		item := r.items[id]
		if !item.Deliverable() {
			continue
		}
		if item.ScheduledAt != nil && item.ScheduledAt.After(now) {
			continue
		}
		if item.NextRetryAt != nil && item.NextRetryAt.After(now) {
			continue
		}
		out := *item
		items = append(items, &out)
	}
	return items, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || (item.Status != domain.OutboxPending && item.Status != domain.OutboxFailed) {
		return domain.ErrNotificationNotFound
	}

	item.Status = domain.OutboxSent
	item.SentAt = timePtr(sentAt)
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string, sendErr string, failureType domain.FailureType, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || (item.Status != domain.OutboxPending && item.Status != domain.OutboxFailed) {
		// A sent or skipped row is final; a racing dispatcher's late failure
		// report must not resurrect it.
		return domain.ErrNotificationNotFound
	}

	item.Status = domain.OutboxFailed
	item.RetryCount++
	item.LastError = &sendErr
	item.FailureType = &failureType
	item.NextRetryAt = r.policy.NextRetryAt(item.RetryCount, failureType, now)
	return nil
}

func (r *OutboxRepository) MarkSkipped(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || (item.Status != domain.OutboxPending && item.Status != domain.OutboxFailed) {
		return domain.ErrNotificationNotFound
	}

	item.Status = domain.OutboxSkipped
	return nil
}
