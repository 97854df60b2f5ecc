package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Service owns incidents, an escalation policy and its broadcast integrations.
type Service struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	PolicyID     *string              `json:"policy_id,omitempty"`
	TeamID       *string              `json:"team_id,omitempty"`
	Integrations []ServiceIntegration `json:"integrations"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// ServiceIntegration is a tagged union: Kind selects which typed config is set.
type ServiceIntegration struct {
	Kind         ChannelKind         `json:"kind"`
	Enabled      bool                `json:"enabled"`
	SlackWebhook *SlackWebhookConfig `json:"slack_webhook,omitempty"`
	SlackChannel *SlackChannelConfig `json:"slack_channel,omitempty"`
	Webhook      *WebhookConfig      `json:"webhook,omitempty"`
}

type SlackWebhookConfig struct {
	URL string `json:"url"`
}

type SlackChannelConfig struct {
	ChannelID string `json:"channel_id"`
}

type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Destination returns the address the integration delivers to.
func (i ServiceIntegration) Destination() string {
	switch i.Kind {
	case ChannelKindSlackWebhook:
		if i.SlackWebhook != nil {
			return i.SlackWebhook.URL
		}
	case ChannelKindSlackAPI:
		if i.SlackChannel != nil {
			return i.SlackChannel.ChannelID
		}
	case ChannelKindWebhook:
		if i.Webhook != nil {
			return i.Webhook.URL
		}
	}
	return ""
}

// Validate enforces that exactly the config matching Kind is present and well formed.
func (i ServiceIntegration) Validate() error {
	set := 0
	for _, present := range []bool{i.SlackWebhook != nil, i.SlackChannel != nil, i.Webhook != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one integration config must be set")
	}

	switch i.Kind {
	case ChannelKindSlackWebhook:
		if i.SlackWebhook == nil {
			return errors.New("slack_webhook config is required")
		}
		return validateHTTPURL(i.SlackWebhook.URL)
	case ChannelKindSlackAPI:
		if i.SlackChannel == nil || i.SlackChannel.ChannelID == "" {
			return errors.New("slack_channel.channel_id is required")
		}
		return nil
	case ChannelKindWebhook:
		if i.Webhook == nil {
			return errors.New("webhook config is required")
		}
		return validateHTTPURL(i.Webhook.URL)
	}
	return fmt.Errorf("kind %q is not a service integration", i.Kind)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if u.Host == "" {
		return errors.New("url host is required")
	}
	return nil
}
