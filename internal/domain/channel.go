package domain

// ChannelKind identifies a delivery transport.
type ChannelKind string

// Channel kinds. The first four are per-user channels; the rest are service integrations.
const (
	ChannelKindPush         ChannelKind = "push"
	ChannelKindSMS          ChannelKind = "sms"
	ChannelKindWhatsApp     ChannelKind = "whatsapp"
	ChannelKindEmail        ChannelKind = "email"
	ChannelKindSlackWebhook ChannelKind = "slack_webhook"
	ChannelKindSlackAPI     ChannelKind = "slack_api"
	ChannelKindWebhook      ChannelKind = "webhook"
)

// UserChannelPriority is the fixed delivery order for per-user channels.
var UserChannelPriority = []ChannelKind{
	ChannelKindPush,
	ChannelKindSMS,
	ChannelKindWhatsApp,
	ChannelKindEmail,
}

// IsValid checks if the channel kind is known.
func (k ChannelKind) IsValid() bool {
	return k.IsUserChannel() || k.IsServiceChannel()
}

// IsUserChannel reports whether the kind delivers to an individual user.
func (k ChannelKind) IsUserChannel() bool {
	switch k {
	case ChannelKindPush, ChannelKindSMS, ChannelKindWhatsApp, ChannelKindEmail:
		return true
	}
	return false
}

// IsServiceChannel reports whether the kind is a service-level integration.
func (k ChannelKind) IsServiceChannel() bool {
	switch k {
	case ChannelKindSlackWebhook, ChannelKindSlackAPI, ChannelKindWebhook:
		return true
	}
	return false
}

// RequiresPhone reports whether the channel needs the user's phone number.
func (k ChannelKind) RequiresPhone() bool {
	return k == ChannelKindSMS || k == ChannelKindWhatsApp
}
