// Package slack delivers service broadcasts to Slack via incoming webhooks or the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/slack-go/slack"
)

const defaultTimeout = 10 * time.Second

// WebhookConfig holds incoming webhook adapter configuration.
// The webhook URL itself is stored on the service integration.
type WebhookConfig struct {
	Username string
	IconURL  string
	Timeout  time.Duration
}

// WebhookAdapter implements notifications.Adapter for Slack incoming webhooks.
type WebhookAdapter struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookAdapter creates a new Slack incoming webhook adapter.
func NewWebhookAdapter(config WebhookConfig) *WebhookAdapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &WebhookAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Kind returns the channel kind.
func (a *WebhookAdapter) Kind() domain.ChannelKind {
	return domain.ChannelKindSlackWebhook
}

// Enabled always reports true since each integration carries its own URL.
func (a *WebhookAdapter) Enabled() bool {
	return true
}

// Send posts msg.Body to the webhook in msg.To.
func (a *WebhookAdapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if msg.To == "" {
		return notifications.Result{Error: "slack webhook URL is empty"}
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, msg.To, a.httpClient, &slack.WebhookMessage{
		Username: a.config.Username,
		IconURL:  a.config.IconURL,
		Text:     msg.Body,
	})
	if err != nil {
		return resultFromSlackError(err)
	}
	return notifications.Delivered()
}

// APIConfig holds Slack Web API adapter configuration.
type APIConfig struct {
	Token   string
	APIURL  string
	Timeout time.Duration
}

// APIAdapter implements notifications.Adapter for chat.postMessage.
type APIAdapter struct {
	client *slack.Client
	token  string
}

// NewAPIAdapter creates a new Slack Web API adapter.
func NewAPIAdapter(config APIConfig) *APIAdapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(config.APIURL, "/")+"/"))
	}

	return &APIAdapter{
		client: slack.New(config.Token, opts...),
		token:  config.Token,
	}
}

// Kind returns the channel kind.
func (a *APIAdapter) Kind() domain.ChannelKind {
	return domain.ChannelKindSlackAPI
}

// Enabled reports whether a bot token is configured.
func (a *APIAdapter) Enabled() bool {
	return a.token != ""
}

// Send posts a message to the channel id in msg.To.
func (a *APIAdapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if a.token == "" {
		return notifications.Result{Error: "slack bot token is not configured"}
	}
	if msg.To == "" {
		return notifications.Result{Error: "slack channel id is empty"}
	}

	_, _, err := a.client.PostMessageContext(ctx, msg.To,
		slack.MsgOptionText(msg.Subject, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, msg.Body, false, false), nil, nil),
		),
	)
	if err != nil {
		return resultFromSlackError(err)
	}
	return notifications.Delivered()
}

// resultFromSlackError classifies slack-go errors. API-level errors such as
// channel_not_found are permanent; rate limits, 5xx and transport errors are not.
func resultFromSlackError(err error) notifications.Result {
	retryable := true

	var statusErr slack.StatusCodeError
	var rateErr *slack.RateLimitedError
	var apiErr slack.SlackErrorResponse
	switch {
	case errors.As(err, &rateErr):
		retryable = true
	case errors.As(err, &statusErr):
		retryable = statusErr.Retryable()
	case errors.As(err, &apiErr):
		retryable = false
	}

	return notifications.Result{Error: fmt.Sprintf("slack: %v", err), Retryable: retryable}
}
