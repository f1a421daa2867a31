package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

// WebhookSender POSTs the payload as JSON to the resolved address. It also
// carries the line and push channels: their resolved addresses are provider
// callback URLs, so delivery is the same HTTP handoff.
type WebhookSender struct {
	client *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

type webhookBody struct {
	Channel string            `json:"channel"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	URL     *string           `json:"url,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func (s *WebhookSender) Send(ctx context.Context, channel domain.Channel, payload domain.Payload, address string) error {
	body, err := json.Marshal(webhookBody{
		Channel: string(channel),
		Title:   payload.Title,
		Body:    payload.Body,
		URL:     payload.URL,
		Meta:    payload.Meta,
	})
	if err != nil {
		return Permanent("marshal webhook body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return Permanent("build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range payload.Meta {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Temporary("do webhook request", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return &SendError{StatusCode: resp.StatusCode, Message: "webhook rejected"}
	default:
		// Remaining 4xx: the endpoint understood the request and refused it.
		return &SendError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("webhook rejected %s", address), Permanent: true}
	}
}
