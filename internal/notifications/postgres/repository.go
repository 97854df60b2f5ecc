// Package postgres provides PostgreSQL implementation of notifications repositories.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements notifications.AuditRepository and
// notifications.ServiceRepository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordNotification appends one delivery attempt to the audit log.
func (r *Repository) RecordNotification(ctx context.Context, record *domain.NotificationRecord) error {
	query := `
		INSERT INTO notifications (id, incident_id, user_id, service_id, channel, event, outcome, error, step_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.IncidentID,
		record.UserID,
		record.ServiceID,
		record.Channel,
		record.Event,
		record.Outcome,
		record.Error,
		record.StepIndex,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns audit records matching the filter, newest first.
func (r *Repository) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)
	addCondition := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.IncidentID != "" {
		addCondition("incident_id", filter.IncidentID)
	}
	if filter.UserID != "" {
		addCondition("user_id", filter.UserID)
	}
	if filter.Channel != "" {
		addCondition("channel", filter.Channel)
	}

	query := `
		SELECT id, incident_id, user_id, service_id, channel, event, outcome, COALESCE(error, ''), step_index, created_at
		FROM notifications
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	records := make([]domain.NotificationRecord, 0)
	for rows.Next() {
		var rec domain.NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.IncidentID,
			&rec.UserID,
			&rec.ServiceID,
			&rec.Channel,
			&rec.Event,
			&rec.Outcome,
			&rec.Error,
			&rec.StepIndex,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}

// GetService retrieves a service with its decoded integrations.
func (r *Repository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	query := `
		SELECT id, name, description, escalation_policy_id, team_id, integrations, created_at, updated_at
		FROM services
		WHERE id = $1
	`
	var (
		service domain.Service
		raw     []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&service.ID,
		&service.Name,
		&service.Description,
		&service.PolicyID,
		&service.TeamID,
		&raw,
		&service.CreatedAt,
		&service.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	service.Integrations = make([]domain.ServiceIntegration, 0)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &service.Integrations); err != nil {
			return nil, fmt.Errorf("decode integrations: %w", err)
		}
	}
	return &service, nil
}

// SetServiceIntegrations replaces a service's integration list.
func (r *Repository) SetServiceIntegrations(ctx context.Context, serviceID string, integrations []domain.ServiceIntegration) error {
	if integrations == nil {
		integrations = []domain.ServiceIntegration{}
	}
	raw, err := json.Marshal(integrations)
	if err != nil {
		return fmt.Errorf("encode integrations: %w", err)
	}

	query := `UPDATE services SET integrations = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, serviceID, raw)
	if err != nil {
		return fmt.Errorf("update integrations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrServiceNotFound
	}
	return nil
}
