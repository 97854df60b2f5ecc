// Package oncall resolves escalation targets into concrete users.
package oncall

import (
	"context"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Directory provides read access to users, teams and on-call schedules.
type Directory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
	GetSchedule(ctx context.Context, id string) (*domain.OnCallSchedule, error)
}
