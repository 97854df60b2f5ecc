// Package postgres provides PostgreSQL implementation of the on-call directory.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/oncall"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements oncall.Directory using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetUser retrieves a user with notification preferences and push devices.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.phone_number,
			u.email_notifications_enabled, u.sms_notifications_enabled,
			u.push_notifications_enabled, u.whatsapp_notifications_enabled,
			COALESCE(
				(SELECT array_agg(d.token ORDER BY d.last_used_at DESC NULLS LAST)
				 FROM user_devices d WHERE d.user_id = u.id),
				'{}'
			),
			u.created_at, u.updated_at
		FROM users u
		WHERE u.id = $1
	`
	var user domain.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhoneNumber,
		&user.Preferences.Email,
		&user.Preferences.SMS,
		&user.Preferences.Push,
		&user.Preferences.WhatsApp,
		&user.PushDeviceTokens,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oncall.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetTeam retrieves a team with its membership list.
func (r *Repository) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	var team domain.Team
	err := r.db.QueryRow(ctx, `SELECT id, name, team_lead_id FROM teams WHERE id = $1`, id).
		Scan(&team.ID, &team.Name, &team.TeamLeadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oncall.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}

	query := `
		SELECT user_id, receive_team_notifications
		FROM team_members
		WHERE team_id = $1
		ORDER BY created_at, user_id
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	team.Members = make([]domain.TeamMember, 0)
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.ReceiveTeamNotifications); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		team.Members = append(team.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}

	return &team, nil
}

// GetSchedule retrieves a schedule with layers (users ordered by position) and overrides.
func (r *Repository) GetSchedule(ctx context.Context, id string) (*domain.OnCallSchedule, error) {
	var schedule domain.OnCallSchedule
	err := r.db.QueryRow(ctx, `SELECT id, name, time_zone FROM oncall_schedules WHERE id = $1`, id).
		Scan(&schedule.ID, &schedule.Name, &schedule.TimeZone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oncall.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	layers, err := r.listLayers(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Layers = layers

	overrides, err := r.listOverrides(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Overrides = overrides

	return &schedule, nil
}

func (r *Repository) listLayers(ctx context.Context, scheduleID string) ([]domain.ScheduleLayer, error) {
	query := `
		SELECT l.id, l.name, l.start_at, l.end_at, l.rotation_length_hours,
			COALESCE(
				array_agg(lu.user_id::text ORDER BY lu.position) FILTER (WHERE lu.user_id IS NOT NULL),
				'{}'
			)
		FROM oncall_layers l
		LEFT JOIN oncall_layer_users lu ON lu.layer_id = l.id
		WHERE l.schedule_id = $1
		GROUP BY l.id
		ORDER BY l.created_at, l.id
	`
	rows, err := r.db.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	layers := make([]domain.ScheduleLayer, 0)
	for rows.Next() {
		var l domain.ScheduleLayer
		if err := rows.Scan(&l.ID, &l.Name, &l.Start, &l.End, &l.RotationLengthHours, &l.UserIDs); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate layers: %w", err)
	}
	return layers, nil
}

func (r *Repository) listOverrides(ctx context.Context, scheduleID string) ([]domain.ScheduleOverride, error) {
	query := `
		SELECT id, user_id, replaces_user_id, layer_id, start_at, end_at
		FROM oncall_overrides
		WHERE schedule_id = $1
		ORDER BY start_at, id
	`
	rows, err := r.db.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	overrides := make([]domain.ScheduleOverride, 0)
	for rows.Next() {
		var o domain.ScheduleOverride
		if err := rows.Scan(&o.ID, &o.UserID, &o.ReplacesUserID, &o.LayerID, &o.Start, &o.End); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return overrides, nil
}
