package incidents

import (
	"errors"

	"github.com/bissquit/incident-escalator/internal/escalation"
	"github.com/bissquit/incident-escalator/internal/notifications"
)

// Lookup errors shared with the stores that produce them.
var (
	ErrIncidentNotFound = escalation.ErrIncidentNotFound
	ErrServiceNotFound  = notifications.ErrServiceNotFound
)

// Validation errors.
var (
	ErrEmptyUpdate   = errors.New("update must change at least one field")
	ErrInvalidSnooze = errors.New("snooze_minutes requires status snoozed")
	ErrInvalidStatus = escalation.ErrInvalidStatus
)
