package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/infrastructure/memory"
	"github.com/wastewise/taskcore/internal/retry"
)

func newOutbox() *memory.OutboxRepository {
	return memory.NewOutboxRepository(retry.NewPolicy())
}

func enqueueOne(t *testing.T, repo *memory.OutboxRepository) *domain.OutboxItem {
	t.Helper()
	item := &domain.OutboxItem{
		Channel:      domain.ChannelEmail,
		RecipientKey: "driver:42",
		Payload:      domain.Payload{Title: "route ready", Body: "tomorrow's route is published"},
	}
	if err := repo.Enqueue(context.Background(), []*domain.OutboxItem{item}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return item
}

func TestListPending_SentItem_NeverReappears(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)
	now := time.Now()

	if err := repo.MarkSent(ctx, item.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	for i := 0; i < 3; i++ {
		pending, err := repo.ListPending(ctx, now.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("sent item reappeared in list_pending: %v", pending[0].ID)
		}
	}

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OutboxSent || got.SentAt == nil {
		t.Errorf("status=%s sent_at=%v, want sent with sent_at set", got.Status, got.SentAt)
	}
}

func TestListPending_ScheduledInFuture_Excluded(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	now := time.Now()

	scheduledAt := now.Add(time.Hour)
	item := &domain.OutboxItem{
		Channel:      domain.ChannelLine,
		RecipientKey: "crew:7",
		Payload:      domain.Payload{Title: "shift", Body: "pickup volume forecast"},
		ScheduledAt:  &scheduledAt,
	}
	if err := repo.Enqueue(ctx, []*domain.OutboxItem{item}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := repo.ListPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatal("item scheduled in the future must not be listed")
	}

	pending, err = repo.ListPending(ctx, scheduledAt.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("item past scheduled_at must be listed, got %d", len(pending))
	}
}

func TestMarkFailed_Temporary_RetriedWithGrowingBackoff(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)
	now := time.Now()

	var prevGap time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		if err := repo.MarkFailed(ctx, item.ID, "smtp timeout", domain.FailureTemporary, now); err != nil {
			t.Fatalf("mark failed %d: %v", attempt, err)
		}

		got, err := repo.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("get %d: %v", attempt, err)
		}
		if got.RetryCount != attempt {
			t.Fatalf("retry_count=%d, want %d", got.RetryCount, attempt)
		}
		if got.NextRetryAt == nil {
			t.Fatalf("attempt %d: temporary failure must schedule a retry", attempt)
		}

		gap := got.NextRetryAt.Sub(now)
		if gap < prevGap {
			t.Fatalf("attempt %d: backoff shrank from %v to %v", attempt, prevGap, gap)
		}
		prevGap = gap

		// Not listed before next_retry_at, listed after.
		pending, _ := repo.ListPending(ctx, now, 10)
		if len(pending) != 0 {
			t.Fatalf("attempt %d: item listed before next_retry_at", attempt)
		}
		pending, _ = repo.ListPending(ctx, got.NextRetryAt.Add(time.Second), 10)
		if len(pending) != 1 {
			t.Fatalf("attempt %d: item not listed after next_retry_at", attempt)
		}
	}
}

func TestMarkFailed_AfterSent_DoesNotResurrectItem(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)
	now := time.Now()

	// Two dispatchers list the same batch; A delivers first.
	if err := repo.MarkSent(ctx, item.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// B's attempt fails and reports late. The sent row must stay sent.
	err := repo.MarkFailed(ctx, item.ID, "smtp timeout", domain.FailureTemporary, now)
	if err == nil {
		t.Fatal("mark failed on a sent item must be rejected")
	}
	if err != domain.ErrNotificationNotFound {
		t.Fatalf("err = %v, want ErrNotificationNotFound", err)
	}

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OutboxSent {
		t.Errorf("status=%s, want sent", got.Status)
	}
	if got.RetryCount != 0 || got.NextRetryAt != nil || got.LastError != nil {
		t.Errorf("retry metadata touched on a sent item: count=%d next=%v err=%v",
			got.RetryCount, got.NextRetryAt, got.LastError)
	}

	pending, err := repo.ListPending(ctx, now.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Error("sent item reappeared in list_pending after a late failure report")
	}
}

func TestMarkFailed_AfterSkipped_Rejected(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)

	if err := repo.MarkSkipped(ctx, item.ID); err != nil {
		t.Fatalf("mark skipped: %v", err)
	}

	if err := repo.MarkFailed(ctx, item.ID, "late report", domain.FailureTemporary, time.Now()); err != domain.ErrNotificationNotFound {
		t.Fatalf("err = %v, want ErrNotificationNotFound", err)
	}

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OutboxSkipped {
		t.Errorf("status=%s, want skipped", got.Status)
	}
}

func TestMarkFailed_Permanent_DeadLetteredInPlace(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)
	now := time.Now()

	if err := repo.MarkFailed(ctx, item.ID, "recipient rejected", domain.FailurePermanent, now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OutboxFailed {
		t.Errorf("status=%s, want failed (dead-lettered in place, not deleted)", got.Status)
	}
	if got.FailureType == nil || *got.FailureType != domain.FailurePermanent {
		t.Errorf("failure_type=%v, want PERMANENT", got.FailureType)
	}
	if got.NextRetryAt != nil {
		t.Errorf("permanent failure must not schedule a retry, got %v", got.NextRetryAt)
	}

	pending, err := repo.ListPending(ctx, now.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Error("permanently failed item must be excluded from list_pending")
	}
}

func TestMarkSkipped_Terminal(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()
	item := enqueueOne(t, repo)

	if err := repo.MarkSkipped(ctx, item.ID); err != nil {
		t.Fatalf("mark skipped: %v", err)
	}

	pending, err := repo.ListPending(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Error("skipped item must not be retried")
	}
}

func TestListPending_OldestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	repo := newOutbox()

	first := enqueueOne(t, repo)
	enqueueOne(t, repo)
	enqueueOne(t, repo)

	pending, err := repo.ListPending(ctx, time.Now(), 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("limit not honored: got %d items", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Errorf("first listed item %s, want oldest %s", pending[0].ID, first.ID)
	}
}
