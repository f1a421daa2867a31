package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

// ProfileClient resolves recipient keys and channel preferences against the
// profile service of the main backend. It implements both RecipientResolver
// and PreferencePort.
type ProfileClient struct {
	client  *http.Client
	baseURL string
}

func NewProfileClient(baseURL string, timeout time.Duration) *ProfileClient {
	return &ProfileClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type addressResponse struct {
	Address string `json:"address"`
}

// Resolve returns the transport address for a recipient on a channel. A 404
// from the profile service means the recipient has no address there; that is
// reported as an empty address, not an error.
func (c *ProfileClient) Resolve(ctx context.Context, recipientKey string, channel domain.Channel) (string, error) {
	endpoint := fmt.Sprintf("%s/internal/recipients/%s/address?channel=%s",
		c.baseURL, url.PathEscape(recipientKey), url.QueryEscape(string(channel)))

	var resp addressResponse
	found, err := c.getJSON(ctx, endpoint, &resp)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return resp.Address, nil
}

type preferencesResponse struct {
	EmailEnabled   bool `json:"email_enabled"`
	LineEnabled    bool `json:"line_enabled"`
	WebhookEnabled bool `json:"webhook_enabled"`
	PushEnabled    bool `json:"push_enabled"`
}

// GetForRecipient returns the recipient's channel opt-ins. A 404 means no
// preferences are recorded, which reads as "all channels allowed".
func (c *ProfileClient) GetForRecipient(ctx context.Context, recipientKey string) (*Preferences, error) {
	endpoint := fmt.Sprintf("%s/internal/recipients/%s/preferences",
		c.baseURL, url.PathEscape(recipientKey))

	var resp preferencesResponse
	found, err := c.getJSON(ctx, endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Preferences{
		EmailEnabled:   resp.EmailEnabled,
		LineEnabled:    resp.LineEnabled,
		WebhookEnabled: resp.WebhookEnabled,
		PushEnabled:    resp.PushEnabled,
	}, nil
}

// getJSON reports found=false on 404 and decodes the body into out on 200.
func (c *ProfileClient) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("do profile request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode profile response: %w", err)
		}
		return true, nil
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("profile service returned %d", resp.StatusCode)
	}
}

// KeyResolver treats the recipient key itself as the transport address.
// Local-dev stand-in for the profile service, paired with LogSender.
type KeyResolver struct{}

func (KeyResolver) Resolve(_ context.Context, recipientKey string, _ domain.Channel) (string, error) {
	return recipientKey, nil
}
