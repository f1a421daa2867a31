package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidChannel       = errors.New("invalid notification channel")
	ErrInvalidNotification  = errors.New("invalid notification")
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelLine    Channel = "line"
	ChannelWebhook Channel = "webhook"
	ChannelPush    Channel = "push"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelLine, ChannelWebhook, ChannelPush:
		return true
	}
	return false
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	return c, nil
}

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
	OutboxSkipped OutboxStatus = "skipped"
)

// FailureType classifies the most recent send failure. TEMPORARY failures
// are retried per the backoff policy; PERMANENT ones are dead-lettered in
// place and never re-selected.
type FailureType string

const (
	FailureTemporary FailureType = "TEMPORARY"
	FailurePermanent FailureType = "PERMANENT"
)

// Payload is the channel-independent message content. Meta carries
// channel-specific extras (e.g. webhook headers) and may be nil.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   *string           `json:"url,omitempty"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// OutboxItem is one notification persisted alongside the business change
// that triggered it, delivered asynchronously with at-least-once semantics.
type OutboxItem struct {
	ID           string
	Channel      Channel
	Status       OutboxStatus
	RecipientKey string // resolved to a transport address at dispatch time
	Payload      Payload

	ScheduledAt *time.Time // nil = send as soon as dispatched

	RetryCount  int
	NextRetryAt *time.Time
	LastError   *string
	FailureType *FailureType

	CreatedAt time.Time
	SentAt    *time.Time
}

// Deliverable reports whether the item may still be selected for sending.
// A failed item stays deliverable (the retry gate is next_retry_at) until
// its failure is classified permanent.
func (i *OutboxItem) Deliverable() bool {
	if i.Status != OutboxPending && i.Status != OutboxFailed {
		return false
	}
	return i.FailureType == nil || *i.FailureType != FailurePermanent
}
