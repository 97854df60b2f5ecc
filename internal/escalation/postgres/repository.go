// Package postgres provides PostgreSQL implementation of the escalation repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/escalation"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IncidentColumns is the canonical column list for scanning an incident with ScanIncident.
const IncidentColumns = `id, title, description, service_id, status, urgency, assignee_id,
	escalation_status, current_escalation_step, next_escalation_at, snoozed_until,
	acknowledged_at, resolved_at, created_at, updated_at`

// Repository implements escalation.Repository and escalation.PolicyReader using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ScanIncident scans a row selected with IncidentColumns.
func ScanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.Title,
		&inc.Description,
		&inc.ServiceID,
		&inc.Status,
		&inc.Urgency,
		&inc.AssigneeID,
		&inc.EscalationStatus,
		&inc.CurrentEscalationStep,
		&inc.NextEscalationAt,
		&inc.SnoozedUntil,
		&inc.AcknowledgedAt,
		&inc.ResolvedAt,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + IncidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := ScanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// ListDue returns ids of escalating incidents that are due, oldest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM incidents
		WHERE escalation_status = 'escalating' AND next_escalation_at <= $1
		ORDER BY next_escalation_at
		LIMIT $2
	`
	return r.listIDs(ctx, query, now, limit)
}

// ListExpiredSnoozes returns ids of snoozed incidents whose snooze has ended.
func (r *Repository) ListExpiredSnoozes(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM incidents
		WHERE status = 'snoozed' AND snoozed_until <= $1
		ORDER BY snoozed_until
		LIMIT $2
	`
	return r.listIDs(ctx, query, now, limit)
}

func (r *Repository) listIDs(ctx context.Context, query string, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect incident ids: %w", err)
	}
	return ids, nil
}

// AdvanceEscalation is a compare-and-swap on the escalation bookkeeping.
func (r *Repository) AdvanceEscalation(ctx context.Context, incidentID string, expected, next domain.EscalationState) (bool, error) {
	query := `
		UPDATE incidents
		SET escalation_status = $5, current_escalation_step = $6, next_escalation_at = $7, updated_at = NOW()
		WHERE id = $1
			AND escalation_status = $2
			AND current_escalation_step = $3
			AND next_escalation_at IS NOT DISTINCT FROM $4
	`
	tag, err := r.db.Exec(ctx, query,
		incidentID,
		expected.Status,
		expected.Step,
		expected.NextAt,
		next.Status,
		next.Step,
		next.NextAt,
	)
	if err != nil {
		return false, fmt.Errorf("advance escalation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendTimeline inserts a timeline entry.
func (r *Repository) AppendTimeline(ctx context.Context, entry *domain.TimelineEntry) error {
	return InsertTimeline(ctx, r.db, entry)
}

// Execer is satisfied by both the pool and a transaction.
type Execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertTimeline inserts entry using db, filling its ID.
func InsertTimeline(ctx context.Context, db Execer, entry *domain.TimelineEntry) error {
	query := `
		INSERT INTO incident_events (incident_id, kind, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := db.QueryRow(ctx, query, entry.IncidentID, entry.Kind, entry.Message, entry.CreatedAt).Scan(&entry.ID); err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy with its steps ordered by step_order.
func (r *Repository) GetPolicy(ctx context.Context, id string) (*domain.EscalationPolicy, error) {
	var policy domain.EscalationPolicy
	err := r.db.QueryRow(ctx, `SELECT id, name FROM escalation_policies WHERE id = $1`, id).Scan(&policy.ID, &policy.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escalation.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}

	query := `
		SELECT id, step_order, delay_minutes, target_type, target_id::text, notify_only_team_lead, notification_channels
		FROM escalation_steps
		WHERE policy_id = $1
		ORDER BY step_order
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	policy.Steps = make([]domain.EscalationStep, 0)
	for rows.Next() {
		var (
			step     domain.EscalationStep
			channels []string
		)
		if err := rows.Scan(
			&step.ID,
			&step.StepOrder,
			&step.DelayMinutes,
			&step.TargetType,
			&step.TargetID,
			&step.NotifyOnlyTeamLead,
			&channels,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		for _, ch := range channels {
			step.NotificationChannels = append(step.NotificationChannels, domain.ChannelKind(ch))
		}
		if err := step.Validate(); err != nil {
			ctxlog.FromContext(ctx).Warn("escalation step misconfigured",
				"policy_id", id,
				"step", step.StepOrder,
				"dropped_channels", step.DropInvalidChannels(),
				"error", err,
				"config_error", true,
			)
		}
		policy.Steps = append(policy.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	return &policy, nil
}
