package oncall

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Resolver turns an escalation target into a deduplicated set of user IDs.
// It never fails: bad targets resolve to nobody and are logged.
type Resolver struct {
	dir Directory
}

// NewResolver creates a new target resolver.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveTargets returns the users to notify for a target at the given time.
func (r *Resolver) ResolveTargets(ctx context.Context, targetType domain.TargetType, targetID string, at time.Time, teamLeadOnly bool) []string {
	logger := slog.With("target_type", targetType, "target_id", targetID)

	if targetID == "" {
		logger.Warn("escalation target has no id", "config_error", true)
		return []string{}
	}

	switch targetType {
	case domain.TargetTypeUser:
		return r.resolveUser(ctx, logger, targetID)
	case domain.TargetTypeTeam:
		return r.resolveTeam(ctx, logger, targetID, teamLeadOnly)
	case domain.TargetTypeSchedule:
		return r.resolveSchedule(ctx, logger, targetID, at)
	default:
		logger.Warn("unknown escalation target type", "config_error", true)
		return []string{}
	}
}

func (r *Resolver) resolveUser(ctx context.Context, logger *slog.Logger, userID string) []string {
	user, err := r.dir.GetUser(ctx, userID)
	if err != nil {
		logLookupError(logger, err)
		return []string{}
	}
	if user.Preferences.AllDisabled() {
		logger.Info("user has disabled all notifications")
		return []string{}
	}
	return []string{user.ID}
}

func (r *Resolver) resolveTeam(ctx context.Context, logger *slog.Logger, teamID string, leadOnly bool) []string {
	team, err := r.dir.GetTeam(ctx, teamID)
	if err != nil {
		logLookupError(logger, err)
		return []string{}
	}

	members := team.OptedInMemberIDs()
	if !leadOnly {
		return dedupe(members)
	}

	if team.TeamLeadID == nil {
		logger.Warn("team lead requested but team has no lead", "config_error", true)
		return []string{}
	}
	for _, id := range members {
		if id == *team.TeamLeadID {
			return []string{id}
		}
	}
	logger.Info("team lead has opted out of team notifications", "lead_id", *team.TeamLeadID)
	return []string{}
}

func (r *Resolver) resolveSchedule(ctx context.Context, logger *slog.Logger, scheduleID string, at time.Time) []string {
	schedule, err := r.dir.GetSchedule(ctx, scheduleID)
	if err != nil {
		logLookupError(logger, err)
		return []string{}
	}

	for _, problem := range ValidateSchedule(schedule) {
		logger.Warn("schedule misconfigured", "problem", problem, "config_error", true)
	}

	users := OnCallAt(schedule, at)
	if users == nil {
		return []string{}
	}
	return users
}

func logLookupError(logger *slog.Logger, err error) {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrTeamNotFound) || errors.Is(err, ErrScheduleNotFound) {
		logger.Warn("escalation target not found", "error", err, "config_error", true)
		return
	}
	logger.Error("failed to load escalation target", "error", err)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	return out
}
