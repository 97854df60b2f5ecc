package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// EventKind identifies why a notification is sent.
type EventKind string

// Event kinds.
const (
	EventTriggered    EventKind = "triggered"
	EventEscalated    EventKind = "escalated"
	EventAcknowledged EventKind = "acknowledged"
	EventResolved     EventKind = "resolved"
	EventReopened     EventKind = "reopened"
	EventSnoozed      EventKind = "snoozed"
	EventSuppressed   EventKind = "suppressed"
	EventUpdated      EventKind = "updated"
	EventAssigned     EventKind = "assigned"
)

// EventForStatus maps an incident status change to the broadcast event.
func EventForStatus(status domain.IncidentStatus) EventKind {
	switch status {
	case domain.IncidentStatusAcknowledged:
		return EventAcknowledged
	case domain.IncidentStatusResolved:
		return EventResolved
	case domain.IncidentStatusSnoozed:
		return EventSnoozed
	case domain.IncidentStatusSuppressed:
		return EventSuppressed
	case domain.IncidentStatusOpen:
		return EventReopened
	}
	return EventUpdated
}

// IncidentSnapshot is a point-in-time copy of an incident for rendering.
type IncidentSnapshot struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description,omitempty"`
	Status         domain.IncidentStatus `json:"status"`
	Urgency        domain.Urgency        `json:"urgency"`
	ServiceID      string                `json:"service_id"`
	ServiceName    string                `json:"service_name"`
	AssigneeID     *string               `json:"assignee_id,omitempty"`
	URL            string                `json:"url"`
	CreatedAt      time.Time             `json:"created_at"`
	AcknowledgedAt *time.Time            `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
}

// NewSnapshot captures the incident state for notification payloads.
func NewSnapshot(incident *domain.Incident, serviceName, baseURL string) IncidentSnapshot {
	return IncidentSnapshot{
		ID:             incident.ID,
		Title:          incident.Title,
		Description:    incident.Description,
		Status:         incident.Status,
		Urgency:        incident.Urgency,
		ServiceID:      incident.ServiceID,
		ServiceName:    serviceName,
		AssigneeID:     incident.AssigneeID,
		URL:            IncidentURL(baseURL, incident.ID),
		CreatedAt:      incident.CreatedAt,
		AcknowledgedAt: incident.AcknowledgedAt,
		ResolvedAt:     incident.ResolvedAt,
	}
}

// IncidentURL builds the dashboard link for an incident.
func IncidentURL(baseURL, incidentID string) string {
	if baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/incidents/%s", strings.TrimRight(baseURL, "/"), incidentID)
}

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	Event       EventKind        `json:"event"`
	Incident    IncidentSnapshot `json:"incident"`
	Step        int              `json:"step,omitempty"` // 1-based, 0 when not part of escalation
	GeneratedAt time.Time        `json:"generated_at"`
}

// NewPayload creates a rendering payload.
func NewPayload(event EventKind, incident IncidentSnapshot, stepIndex *int) NotificationPayload {
	p := NotificationPayload{
		Event:       event,
		Incident:    incident,
		GeneratedAt: time.Now(),
	}
	if stepIndex != nil {
		p.Step = *stepIndex + 1
	}
	return p
}
