// Package incidents is the human-facing surface for creating and updating incidents.
package incidents

import (
	"context"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
type Repository interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)
	ListTimeline(ctx context.Context, incidentID string) ([]domain.TimelineEntry, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	// GetIncidentForUpdateTx locks the incident row until tx ends.
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	AppendTimelineTx(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error
}

// IncidentFilters holds filter options for listing incidents.
type IncidentFilters struct {
	Status    *domain.IncidentStatus
	ServiceID string
	Limit     int
	Offset    int
}
