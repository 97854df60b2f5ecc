package oncall

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// OnCallResult is the set of users on call for a schedule at a point in time.
type OnCallResult struct {
	ScheduleID string    `json:"schedule_id"`
	At         time.Time `json:"at"`
	UserIDs    []string  `json:"user_ids"`
}

// Service answers on-call queries.
type Service struct {
	dir Directory
}

// NewService creates a new on-call service.
func NewService(dir Directory) *Service {
	return &Service{dir: dir}
}

// WhoIsOnCall returns the users on call for a schedule at the given time.
func (s *Service) WhoIsOnCall(ctx context.Context, scheduleID string, at time.Time) (*OnCallResult, error) {
	schedule, err := s.dir.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	users := OnCallAt(schedule, at)
	if users == nil {
		users = []string{}
	}

	return &OnCallResult{
		ScheduleID: schedule.ID,
		At:         at.UTC(),
		UserIDs:    users,
	}, nil
}

// GetSchedule returns a schedule with its layers and overrides.
func (s *Service) GetSchedule(ctx context.Context, id string) (*domain.OnCallSchedule, error) {
	schedule, err := s.dir.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return schedule, nil
}
