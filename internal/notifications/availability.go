package notifications

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Gate decides which per-user channels can be used.
type Gate struct {
	users    UserReader
	registry *Registry
}

// NewGate creates a channel availability gate.
func NewGate(users UserReader, registry *Registry) *Gate {
	return &Gate{users: users, registry: registry}
}

// AvailableChannels returns the user's usable channels in priority order:
// push, sms, whatsapp, email.
func (g *Gate) AvailableChannels(ctx context.Context, userID string) ([]domain.ChannelKind, error) {
	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return g.ChannelsFor(user), nil
}

// ChannelsFor filters the fixed priority order down to what the user can receive.
func (g *Gate) ChannelsFor(user *domain.User) []domain.ChannelKind {
	channels := make([]domain.ChannelKind, 0, len(domain.UserChannelPriority))
	for _, kind := range domain.UserChannelPriority {
		if g.Unavailable(user, kind) == "" {
			channels = append(channels, kind)
		}
	}
	return channels
}

// Unavailable returns why kind cannot reach the user, or "" if it can.
func (g *Gate) Unavailable(user *domain.User, kind domain.ChannelKind) string {
	if !kind.IsUserChannel() {
		return fmt.Sprintf("%s is not a user channel", kind)
	}
	if !user.Preferences.Allows(kind) {
		return fmt.Sprintf("user disabled %s notifications", kind)
	}
	if kind.RequiresPhone() && !user.HasPhone() {
		return "user has no phone number"
	}
	if !g.registry.Enabled(kind) {
		return fmt.Sprintf("%s provider is not configured", kind)
	}
	return ""
}

// destination returns the address for kind on user.
func destination(user *domain.User, kind domain.ChannelKind) string {
	switch kind {
	case domain.ChannelKindSMS, domain.ChannelKindWhatsApp:
		if user.PhoneNumber != nil {
			return *user.PhoneNumber
		}
	case domain.ChannelKindEmail:
		return user.Email
	case domain.ChannelKindPush:
		return user.ID
	}
	return ""
}
