// Package push delivers mobile push notifications through a OneSignal-compatible REST API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
)

const (
	defaultBaseURL = "https://onesignal.com"
	defaultTimeout = 10 * time.Second
)

// Config holds push provider configuration.
type Config struct {
	Enabled bool
	AppID   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Adapter implements notifications.Adapter for push.
type Adapter struct {
	config     Config
	httpClient *http.Client
}

// NewAdapter creates a new push adapter.
// Returns error if enabled but required config is missing.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Enabled && (config.AppID == "" || config.APIKey == "") {
		return nil, errors.New("push adapter: app id and api key are required when enabled")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Kind returns the channel kind.
func (a *Adapter) Kind() domain.ChannelKind {
	return domain.ChannelKindPush
}

// Enabled reports whether the provider is configured.
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

type notificationRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data,omitempty"`
	URL              string            `json:"url,omitempty"`
	Priority         int               `json:"priority,omitempty"`
}

type notificationResponse struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

// Send pushes to every device token registered for the user.
func (a *Adapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if !a.config.Enabled {
		return notifications.Result{Error: "push provider is disabled"}
	}
	if len(msg.DeviceTokens) == 0 {
		return notifications.Result{Error: "user has no registered push devices"}
	}

	payload := notificationRequest{
		AppID:            a.config.AppID,
		IncludePlayerIDs: msg.DeviceTokens,
		Headings:         map[string]string{"en": msg.Subject},
		Contents:         map[string]string{"en": msg.Body},
		Data: map[string]string{
			"incident_id": msg.Incident.ID,
			"event":       string(msg.Event),
		},
		URL: msg.Incident.URL,
	}
	if msg.Incident.Urgency == domain.UrgencyHigh {
		payload.Priority = 10
	}

	if err := a.post(ctx, payload); err != nil {
		return notifications.ResultFromError(err)
	}
	return notifications.Delivered()
}

func (a *Adapter) post(ctx context.Context, payload notificationRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("marshal payload: %w", err))
	}

	endpoint := strings.TrimRight(a.config.BaseURL, "/") + "/api/v1/notifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return notifications.NewRetryableError(fmt.Errorf("push provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return notifications.NewNonRetryableError(fmt.Errorf("push provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}

	var parsed notificationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("decode response: %w", err))
	}
	// OneSignal answers 200 with an empty id when every player id is invalid.
	if parsed.ID == "" {
		return notifications.NewNonRetryableError(fmt.Errorf("no device accepted the notification: %s", parsed.Errors))
	}
	return nil
}
