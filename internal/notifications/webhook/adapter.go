// Package webhook delivers signed JSON incident events to generic HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/google/uuid"
)

// Request headers.
const (
	HeaderSignature = "X-Escalator-Signature"
	HeaderTimestamp = "X-Escalator-Timestamp"
	HeaderDelivery  = "X-Escalator-Delivery"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "incident-escalator-webhook/1.0"
	maxResponseBody  = 4096
)

// Config holds webhook adapter configuration.
// Destination URLs and secrets live on each service integration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Retry     notifications.RetryConfig
}

// Adapter implements notifications.Adapter for generic webhooks.
type Adapter struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// NewAdapter creates a new webhook adapter.
func NewAdapter(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = notifications.DefaultRetryConfig()
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// Kind returns the channel kind.
func (a *Adapter) Kind() domain.ChannelKind {
	return domain.ChannelKindWebhook
}

// Enabled always reports true: webhooks need no global credentials.
func (a *Adapter) Enabled() bool {
	return true
}

// Payload is the JSON document posted to webhook endpoints.
type Payload struct {
	Event    EventInfo    `json:"event"`
	Incident IncidentInfo `json:"incident"`
}

// EventInfo describes what happened.
type EventInfo struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// IncidentInfo is the incident as seen by webhook consumers.
type IncidentInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status"`
	Urgency     string      `json:"urgency"`
	URL         string      `json:"url,omitempty"`
	Service     ServiceInfo `json:"service"`
	Assignee    *string     `json:"assignee"`
	Timestamps  Timestamps  `json:"timestamps"`
}

// ServiceInfo identifies the owning service.
type ServiceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Timestamps are the incident lifecycle times.
type Timestamps struct {
	Created      time.Time  `json:"created"`
	Acknowledged *time.Time `json:"acknowledged"`
	Resolved     *time.Time `json:"resolved"`
}

// NewPayload builds the webhook document for a message.
func NewPayload(msg notifications.Message, at time.Time) Payload {
	inc := msg.Incident
	return Payload{
		Event: EventInfo{
			Type:      "incident." + string(msg.Event),
			Timestamp: at.UTC(),
		},
		Incident: IncidentInfo{
			ID:          inc.ID,
			Title:       inc.Title,
			Description: inc.Description,
			Status:      string(inc.Status),
			Urgency:     string(inc.Urgency),
			URL:         inc.URL,
			Service:     ServiceInfo{ID: inc.ServiceID, Name: inc.ServiceName},
			Assignee:    inc.AssigneeID,
			Timestamps: Timestamps{
				Created:      inc.CreatedAt,
				Acknowledged: inc.AcknowledgedAt,
				Resolved:     inc.ResolvedAt,
			},
		},
	}
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send posts the payload to msg.To, retrying transient failures.
func (a *Adapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if msg.To == "" {
		return notifications.Result{Error: "webhook URL is empty"}
	}

	now := a.now()
	body, err := json.Marshal(NewPayload(msg, now))
	if err != nil {
		return notifications.Result{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	deliveryID := uuid.NewString()
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)

	attempt := 0
	err = notifications.Retry(ctx, a.config.Retry, func(ctx context.Context) error {
		attempt++
		return a.post(ctx, msg, body, deliveryID, timestamp)
	})
	if err != nil {
		slog.Warn("webhook delivery failed",
			"url", maskURL(msg.To),
			"delivery_id", deliveryID,
			"attempts", attempt,
			"error", err,
		)
		return notifications.ResultFromError(err)
	}

	slog.Debug("webhook delivered", "url", maskURL(msg.To), "delivery_id", deliveryID, "attempts", attempt)
	return notifications.Delivered()
}

func (a *Adapter) post(ctx context.Context, msg notifications.Message, body []byte, deliveryID, timestamp string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.To, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", a.config.UserAgent)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderDelivery, deliveryID)
	if msg.SigningSecret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(msg.SigningSecret, body))
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return notifications.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp)
}

func handleResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	err := fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return notifications.NewRetryableError(err)
	}
	return notifications.NewNonRetryableError(err)
}

// maskURL hides part of the URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
