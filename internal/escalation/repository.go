// Package escalation drives incidents through their escalation policies.
package escalation

import (
	"context"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Repository is the escalation view of the incident store.
type Repository interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	// ListDue returns ids of escalating incidents whose next step time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	// ListExpiredSnoozes returns ids of snoozed incidents whose snooze ended at or before now.
	ListExpiredSnoozes(ctx context.Context, now time.Time, limit int) ([]string, error)
	// AdvanceEscalation writes next only if the stored bookkeeping still equals expected.
	// A lost race returns (false, nil).
	AdvanceEscalation(ctx context.Context, incidentID string, expected, next domain.EscalationState) (bool, error)
	AppendTimeline(ctx context.Context, entry *domain.TimelineEntry) error
}

// PolicyReader loads the live escalation policy.
type PolicyReader interface {
	GetPolicy(ctx context.Context, id string) (*domain.EscalationPolicy, error)
}

// ServiceReader loads the service that owns an incident.
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}
