package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/metrics"
	"github.com/wastewise/taskcore/internal/repository"
)

type NotificationUsecase struct {
	outbox repository.OutboxRepository
}

func NewNotificationUsecase(outbox repository.OutboxRepository) *NotificationUsecase {
	return &NotificationUsecase{outbox: outbox}
}

type EnqueueNotificationInput struct {
	Channel      string
	RecipientKey string
	Payload      domain.Payload
	ScheduledAt  *time.Time
}

// Enqueue persists a batch of notifications as pending outbox items. The
// whole batch is written in one transaction so a partial enqueue never
// leaks half of a fan-out.
func (u *NotificationUsecase) Enqueue(ctx context.Context, inputs []EnqueueNotificationInput) ([]*domain.OutboxItem, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	items := make([]*domain.OutboxItem, 0, len(inputs))
	for _, input := range inputs {
		channel, err := domain.ParseChannel(input.Channel)
		if err != nil {
			return nil, err
		}
		if input.RecipientKey == "" {
			return nil, fmt.Errorf("%w: recipient key is required", domain.ErrInvalidNotification)
		}
		if input.Payload.Title == "" && input.Payload.Body == "" {
			return nil, fmt.Errorf("%w: payload needs a title or body", domain.ErrInvalidNotification)
		}
		items = append(items, &domain.OutboxItem{
			Channel:      channel,
			RecipientKey: input.RecipientKey,
			Payload:      input.Payload,
			ScheduledAt:  input.ScheduledAt,
		})
	}

	if err := u.outbox.Enqueue(ctx, items); err != nil {
		return nil, fmt.Errorf("enqueue notifications: %w", err)
	}
	for _, item := range items {
		metrics.OutboxEnqueuedTotal.WithLabelValues(string(item.Channel)).Inc()
	}
	return items, nil
}

func (u *NotificationUsecase) GetByID(ctx context.Context, id string) (*domain.OutboxItem, error) {
	item, err := u.outbox.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return item, nil
}
