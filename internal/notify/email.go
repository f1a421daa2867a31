package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/wastewise/taskcore/internal/domain"
)

// LogSender logs deliveries instead of performing them. ENV=local uses it
// for every channel.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, channel domain.Channel, payload domain.Payload, address string) error {
	s.logger.Info("notification (local dev, not sent)",
		"channel", channel,
		"address", address,
		"title", payload.Title,
		"body", payload.Body,
	)
	return nil
}

// EmailSender delivers email notifications via the Resend API.
type EmailSender struct {
	client *resend.Client
	from   string
}

func NewEmailSender(apiKey, from string) *EmailSender {
	return &EmailSender{client: resend.NewClient(apiKey), from: from}
}

func (s *EmailSender) Send(ctx context.Context, _ domain.Channel, payload domain.Payload, address string) error {
	body := payload.Body
	if payload.URL != nil {
		body = fmt.Sprintf("%s\n\n%s", payload.Body, *payload.URL)
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{address},
		Subject: payload.Title,
		Text:    body,
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return Temporary("resend send", err)
	}
	return nil
}

// SenderMux routes each channel to its transport. Channels without an entry
// fall back to the default sender.
type SenderMux struct {
	senders  map[domain.Channel]ChannelSender
	fallback ChannelSender
}

func NewSenderMux(fallback ChannelSender) *SenderMux {
	return &SenderMux{
		senders:  make(map[domain.Channel]ChannelSender),
		fallback: fallback,
	}
}

func (m *SenderMux) Register(channel domain.Channel, sender ChannelSender) {
	m.senders[channel] = sender
}

func (m *SenderMux) Send(ctx context.Context, channel domain.Channel, payload domain.Payload, address string) error {
	if sender, ok := m.senders[channel]; ok {
		return sender.Send(ctx, channel, payload, address)
	}
	return m.fallback.Send(ctx, channel, payload, address)
}
