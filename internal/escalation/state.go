package escalation

import (
	"fmt"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Change describes one applied status transition.
type Change struct {
	From   domain.IncidentStatus
	To     domain.IncidentStatus
	Before domain.EscalationState
	After  domain.EscalationState
}

// StatusChanged reports whether the status actually moved.
func (c Change) StatusChanged() bool {
	return c.From != c.To
}

// Reopened reports whether the incident returned to open.
func (c Change) Reopened() bool {
	return c.StatusChanged() && c.To == domain.IncidentStatusOpen
}

// StartEscalation initialises bookkeeping for a new incident. Step 0 fires
// after its own delay from creation. Without steps there is nothing to escalate.
func StartEscalation(incident *domain.Incident, policy *domain.EscalationPolicy, now time.Time) {
	first, ok := policy.Step(0)
	if !ok {
		incident.SetEscalation(domain.EscalationState{Status: domain.EscalationStatusCompleted})
		return
	}

	next := now.Add(delay(first))
	incident.SetEscalation(domain.EscalationState{
		Status: domain.EscalationStatusEscalating,
		Step:   0,
		NextAt: &next,
	})
}

// ApplyStatusChange moves incident to status and updates escalation
// bookkeeping and lifecycle timestamps. Setting the current status again is a no-op.
func ApplyStatusChange(incident *domain.Incident, to domain.IncidentStatus, policy *domain.EscalationPolicy, now time.Time) (Change, error) {
	if !to.IsValid() {
		return Change{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	change := Change{
		From:   incident.Status,
		To:     to,
		Before: incident.Escalation(),
	}
	if !change.StatusChanged() {
		change.After = change.Before
		return change, nil
	}

	from := incident.Status
	state := incident.Escalation()

	switch to {
	case domain.IncidentStatusAcknowledged:
		state = domain.EscalationState{Status: domain.EscalationStatusCompleted, Step: state.Step}
		if incident.AcknowledgedAt == nil {
			incident.AcknowledgedAt = &now
		}

	case domain.IncidentStatusResolved:
		state = domain.EscalationState{Status: domain.EscalationStatusCompleted, Step: state.Step}
		incident.ResolvedAt = &now

	case domain.IncidentStatusSnoozed, domain.IncidentStatusSuppressed:
		state = domain.EscalationState{Status: domain.EscalationStatusPaused, Step: state.Step}

	case domain.IncidentStatusOpen:
		state = reopen(from, state.Step, policy, now)
		if from == domain.IncidentStatusAcknowledged || from == domain.IncidentStatusResolved {
			incident.AcknowledgedAt = nil
		}
		if from == domain.IncidentStatusResolved {
			incident.ResolvedAt = nil
		}
	}

	if from == domain.IncidentStatusSnoozed {
		incident.SnoozedUntil = nil
	}

	incident.Status = to
	incident.SetEscalation(state)
	change.After = state
	return change, nil
}

func reopen(from domain.IncidentStatus, step int, policy *domain.EscalationPolicy, now time.Time) domain.EscalationState {
	if policy == nil || len(policy.Steps) == 0 {
		return domain.EscalationState{Status: domain.EscalationStatusCompleted, Step: step}
	}

	next := now
	switch from {
	case domain.IncidentStatusResolved:
		step = 0
	case domain.IncidentStatusAcknowledged:
		// The acknowledged step repeats after its own delay.
		if s, ok := policy.Step(step); ok {
			next = now.Add(delay(s))
		}
	}

	return domain.EscalationState{
		Status: domain.EscalationStatusEscalating,
		Step:   step,
		NextAt: &next,
	}
}

// nextState is the bookkeeping after executing the step at index current.
func nextState(policy *domain.EscalationPolicy, current int, now time.Time) domain.EscalationState {
	if policy.IsLastStep(current) {
		return domain.EscalationState{Status: domain.EscalationStatusCompleted, Step: current}
	}

	following, _ := policy.Step(current + 1)
	next := now.Add(delay(following))
	return domain.EscalationState{
		Status: domain.EscalationStatusEscalating,
		Step:   current + 1,
		NextAt: &next,
	}
}

func delay(step domain.EscalationStep) time.Duration {
	return time.Duration(step.DelayMinutes) * time.Minute
}
