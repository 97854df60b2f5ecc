// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-escalator/internal/domain"
	escpg "github.com/bissquit/incident-escalator/internal/escalation/postgres"
	"github.com/bissquit/incident-escalator/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + escpg.IncidentColumns + ` FROM incidents WHERE id = $1`
	return getIncident(r.db.QueryRow(ctx, query, id))
}

// GetIncidentForUpdateTx retrieves an incident and locks its row.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	query := `SELECT ` + escpg.IncidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	return getIncident(tx.QueryRow(ctx, query, id))
}

func getIncident(row pgx.Row) (*domain.Incident, error) {
	incident, err := escpg.ScanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents with optional filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error) {
	var (
		conditions []string
		args       []any
	)
	if filters.Status != nil {
		args = append(args, *filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.ServiceID != "" {
		args = append(args, filters.ServiceID)
		conditions = append(conditions, fmt.Sprintf("service_id = $%d", len(args)))
	}

	query := `SELECT ` + escpg.IncidentColumns + ` FROM incidents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := escpg.ScanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return result, nil
}

// CreateIncidentTx inserts an incident and fills its ID.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			title, description, service_id, status, urgency, assignee_id,
			escalation_status, current_escalation_step, next_escalation_at, snoozed_until,
			acknowledged_at, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.ServiceID,
		incident.Status,
		incident.Urgency,
		incident.AssigneeID,
		incident.EscalationStatus,
		incident.CurrentEscalationStep,
		incident.NextEscalationAt,
		incident.SnoozedUntil,
		incident.AcknowledgedAt,
		incident.ResolvedAt,
		incident.CreatedAt,
		incident.UpdatedAt,
	).Scan(&incident.ID)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx writes every mutable column of a locked incident.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET status = $2, urgency = $3, assignee_id = $4,
			escalation_status = $5, current_escalation_step = $6, next_escalation_at = $7,
			snoozed_until = $8, acknowledged_at = $9, resolved_at = $10, updated_at = $11
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, query,
		incident.ID,
		incident.Status,
		incident.Urgency,
		incident.AssigneeID,
		incident.EscalationStatus,
		incident.CurrentEscalationStep,
		incident.NextEscalationAt,
		incident.SnoozedUntil,
		incident.AcknowledgedAt,
		incident.ResolvedAt,
		incident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// AppendTimelineTx inserts a timeline entry within tx.
func (r *Repository) AppendTimelineTx(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error {
	return escpg.InsertTimeline(ctx, tx, entry)
}

// ListTimeline retrieves timeline entries for an incident, oldest first.
func (r *Repository) ListTimeline(ctx context.Context, incidentID string) ([]domain.TimelineEntry, error) {
	query := `
		SELECT id, incident_id, kind, message, created_at
		FROM incident_events
		WHERE incident_id = $1
		ORDER BY created_at, seq
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.TimelineEntry, 0)
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return entries, nil
}
