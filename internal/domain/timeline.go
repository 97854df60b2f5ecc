package domain

import "time"

type TimelineKind string

const (
	TimelineKindCreated       TimelineKind = "created"
	TimelineKindStatusChanged TimelineKind = "status_changed"
	TimelineKindReassigned    TimelineKind = "reassigned"
	TimelineKindUrgency       TimelineKind = "urgency_changed"
	TimelineKindEscalated     TimelineKind = "escalated"
)

// TimelineEntry is a human-readable history line on an incident.
type TimelineEntry struct {
	ID         string       `json:"id"`
	IncidentID string       `json:"incident_id"`
	Kind       TimelineKind `json:"kind"`
	Message    string       `json:"message"`
	CreatedAt  time.Time    `json:"created_at"`
}
