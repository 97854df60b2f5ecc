// Package twilio delivers SMS and WhatsApp notifications through the Twilio Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	defaultTimeout = 10 * time.Second
	// SMS bodies longer than this are split by carriers; keep alerts to one segment set.
	maxBodyLength = 1600
)

// Config holds Twilio credentials shared by the SMS and WhatsApp adapters.
type Config struct {
	Enabled      bool
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	BaseURL      string
	Timeout      time.Duration
	// RateLimit is messages per second across both adapters. Zero disables limiting.
	RateLimit float64
}

// Client is a minimal Twilio Messages API client.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Twilio client.
// Returns error if enabled but required config is missing.
func NewClient(config Config) (*Client, error) {
	if config.Enabled {
		if config.AccountSID == "" || config.AuthToken == "" {
			return nil, errors.New("twilio: account sid and auth token are required when enabled")
		}
		if config.FromNumber == "" && config.WhatsAppFrom == "" {
			return nil, errors.New("twilio: at least one of from number or whatsapp from is required when enabled")
		}
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(1, int(config.RateLimit)))
	}

	slog.Info("twilio client configured",
		"enabled", config.Enabled,
		"sms", config.FromNumber != "",
		"whatsapp", config.WhatsAppFrom != "",
		"rate_limit", config.RateLimit,
	)

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
	}, nil
}

// SMS returns the SMS adapter backed by this client.
func (c *Client) SMS() *Adapter {
	return &Adapter{client: c, kind: domain.ChannelKindSMS, from: c.config.FromNumber}
}

// WhatsApp returns the WhatsApp adapter backed by this client.
func (c *Client) WhatsApp() *Adapter {
	return &Adapter{client: c, kind: domain.ChannelKindWhatsApp, from: c.config.WhatsAppFrom, prefix: "whatsapp:"}
}

// Adapter implements notifications.Adapter for one Twilio channel.
type Adapter struct {
	client *Client
	kind   domain.ChannelKind
	from   string
	prefix string
}

// Kind returns the channel kind.
func (a *Adapter) Kind() domain.ChannelKind {
	return a.kind
}

// Enabled reports whether Twilio is on and a sender is set for this channel.
func (a *Adapter) Enabled() bool {
	return a.client.config.Enabled && a.from != ""
}

// Send delivers the short body to the phone number in msg.To.
func (a *Adapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if !a.Enabled() {
		return notifications.Result{Error: fmt.Sprintf("%s provider is disabled", a.kind)}
	}
	if msg.To == "" {
		return notifications.Result{Error: "phone number is empty"}
	}

	if a.client.limiter != nil {
		if err := a.client.limiter.Wait(ctx); err != nil {
			return notifications.Result{Error: fmt.Sprintf("rate limit wait: %v", err), Retryable: true}
		}
	}

	sid, err := a.client.send(ctx, withPrefix(a.prefix, a.from), withPrefix(a.prefix, msg.To), truncate(msg.Body, maxBodyLength))
	if err != nil {
		return notifications.ResultFromError(err)
	}

	slog.Debug("twilio message queued", "channel", a.kind, "sid", sid)
	return notifications.Delivered()
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) send(ctx context.Context, from, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(c.config.AccountSID))

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", notifications.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", notifications.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	var parsed messageResponse
	_ = json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parsed.SID, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", notifications.NewRetryableError(fmt.Errorf("twilio %d: %s", resp.StatusCode, parsed.Message))
	default:
		return "", notifications.NewNonRetryableError(fmt.Errorf("twilio %d (code %d): %s", resp.StatusCode, parsed.Code, parsed.Message))
	}
}

func withPrefix(prefix, number string) string {
	if prefix == "" || strings.HasPrefix(number, prefix) {
		return number
	}
	return prefix + number
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
