package domain

import "time"

// IncidentStatus is the human-facing lifecycle status of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
	IncidentStatusSnoozed      IncidentStatus = "snoozed"
	IncidentStatusSuppressed   IncidentStatus = "suppressed"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusAcknowledged, IncidentStatusResolved,
		IncidentStatusSnoozed, IncidentStatusSuppressed:
		return true
	}
	return false
}

// Urgency ranks how loudly an incident should page.
type Urgency string

// Urgency levels.
const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// IsValid checks if the urgency is valid.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// EscalationStatus is the progress of automatic escalation for an incident.
type EscalationStatus string

// Escalation statuses.
const (
	EscalationStatusEscalating EscalationStatus = "escalating"
	EscalationStatusPaused     EscalationStatus = "paused"
	EscalationStatusCompleted  EscalationStatus = "completed"
)

// EscalationState is the contended part of an incident: the bookkeeping
// the trigger compares and swaps when advancing a step.
type EscalationState struct {
	Status EscalationStatus `json:"escalation_status"`
	Step   int              `json:"current_escalation_step"`
	NextAt *time.Time       `json:"next_escalation_at,omitempty"`
}

// Equal reports whether two states are identical, comparing NextAt by instant.
func (s EscalationState) Equal(o EscalationState) bool {
	if s.Status != o.Status || s.Step != o.Step {
		return false
	}
	if s.NextAt == nil || o.NextAt == nil {
		return s.NextAt == nil && o.NextAt == nil
	}
	return s.NextAt.Equal(*o.NextAt)
}

// Incident is an alert-driven record that escalates until someone acknowledges it.
type Incident struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ServiceID   string         `json:"service_id"`
	Status      IncidentStatus `json:"status"`
	Urgency     Urgency        `json:"urgency"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`

	EscalationStatus      EscalationStatus `json:"escalation_status"`
	CurrentEscalationStep int              `json:"current_escalation_step"`
	NextEscalationAt      *time.Time       `json:"next_escalation_at,omitempty"`
	SnoozedUntil          *time.Time       `json:"snoozed_until,omitempty"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Escalation returns the incident's current escalation bookkeeping.
func (i *Incident) Escalation() EscalationState {
	return EscalationState{
		Status: i.EscalationStatus,
		Step:   i.CurrentEscalationStep,
		NextAt: i.NextEscalationAt,
	}
}

// SetEscalation overwrites the incident's escalation bookkeeping.
func (i *Incident) SetEscalation(s EscalationState) {
	i.EscalationStatus = s.Status
	i.CurrentEscalationStep = s.Step
	i.NextEscalationAt = s.NextAt
}

// IsDue reports whether the incident is escalating and its next step time has passed.
func (i *Incident) IsDue(now time.Time) bool {
	return i.EscalationStatus == EscalationStatusEscalating &&
		i.NextEscalationAt != nil &&
		!i.NextEscalationAt.After(now)
}
