package domain

import "time"

// DeliveryOutcome is the result of a single delivery attempt.
type DeliveryOutcome string

// Delivery outcomes.
const (
	DeliveryOutcomeSent    DeliveryOutcome = "sent"
	DeliveryOutcomeFailed  DeliveryOutcome = "failed"
	DeliveryOutcomeSkipped DeliveryOutcome = "skipped"
)

// NotificationRecord is an append-only audit entry for one delivery attempt.
// UserID is nil for service-level broadcasts.
type NotificationRecord struct {
	ID         string          `json:"id"`
	IncidentID string          `json:"incident_id"`
	UserID     *string         `json:"user_id,omitempty"`
	ServiceID  *string         `json:"service_id,omitempty"`
	Channel    ChannelKind     `json:"channel"`
	Event      string          `json:"event"`
	Outcome    DeliveryOutcome `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	StepIndex  *int            `json:"step_index,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NotificationFilter narrows audit queries. Zero fields are ignored.
type NotificationFilter struct {
	IncidentID string
	UserID     string
	Channel    ChannelKind
	Limit      int
}
