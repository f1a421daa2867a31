// Package notify drives delivery of pending outbox items through external
// channel senders, with per-item failure classification and retry metadata
// recorded back to the outbox store.
package notify

import (
	"context"

	"github.com/wastewise/taskcore/internal/domain"
)

// RecipientResolver turns an opaque recipient key into a transport address
// for a channel (email address, LINE user id, webhook URL, push token).
// An empty address with a nil error means the recipient has no address for
// that channel; the dispatcher treats this as a permanent failure.
type RecipientResolver interface {
	Resolve(ctx context.Context, recipientKey string, channel domain.Channel) (string, error)
}

// Preferences mirrors the recipient's channel opt-ins. A nil *Preferences
// from the port means "all channels allowed".
type Preferences struct {
	EmailEnabled   bool
	LineEnabled    bool
	WebhookEnabled bool
	PushEnabled    bool
}

func (p *Preferences) Allows(channel domain.Channel) bool {
	if p == nil {
		return true
	}
	switch channel {
	case domain.ChannelEmail:
		return p.EmailEnabled
	case domain.ChannelLine:
		return p.LineEnabled
	case domain.ChannelWebhook:
		return p.WebhookEnabled
	case domain.ChannelPush:
		return p.PushEnabled
	}
	return false
}

type PreferencePort interface {
	GetForRecipient(ctx context.Context, recipientKey string) (*Preferences, error)
}

// ChannelSender performs one delivery over a transport. Implementations
// return *SendError to control failure classification.
type ChannelSender interface {
	Send(ctx context.Context, channel domain.Channel, payload domain.Payload, address string) error
}

// RateLimiter gates sends per channel. A nil limiter means unlimited.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
}
