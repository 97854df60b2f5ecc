package domain

import "time"

// NotificationPreferences are per-channel opt-ins on a user.
type NotificationPreferences struct {
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	Push     bool `json:"push"`
	WhatsApp bool `json:"whatsapp"`
}

// AllDisabled reports whether the user turned every channel off.
func (p NotificationPreferences) AllDisabled() bool {
	return !p.Email && !p.SMS && !p.Push && !p.WhatsApp
}

// Allows reports whether the preference flag for kind is on.
func (p NotificationPreferences) Allows(kind ChannelKind) bool {
	switch kind {
	case ChannelKindPush:
		return p.Push
	case ChannelKindSMS:
		return p.SMS
	case ChannelKindWhatsApp:
		return p.WhatsApp
	case ChannelKindEmail:
		return p.Email
	}
	return false
}

// User is a responder who can be paged.
type User struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	PhoneNumber      *string                 `json:"phone_number,omitempty"`
	Preferences      NotificationPreferences `json:"preferences"`
	PushDeviceTokens []string                `json:"-"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// HasPhone reports whether a non-empty phone number is set.
func (u *User) HasPhone() bool {
	return u.PhoneNumber != nil && *u.PhoneNumber != ""
}
