package domain

import (
	"errors"
	"fmt"
)

// TargetType is the kind of recipient an escalation step addresses.
type TargetType string

// Target types.
const (
	TargetTypeUser     TargetType = "user"
	TargetTypeTeam     TargetType = "team"
	TargetTypeSchedule TargetType = "schedule"
)

// IsValid checks if the target type is valid.
func (t TargetType) IsValid() bool {
	switch t {
	case TargetTypeUser, TargetTypeTeam, TargetTypeSchedule:
		return true
	}
	return false
}

// EscalationPolicy is an ordered list of steps referenced by a service.
type EscalationPolicy struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Steps []EscalationStep `json:"steps"`
}

// EscalationStep defines who to notify after how much delay.
type EscalationStep struct {
	ID                 string     `json:"id"`
	StepOrder          int        `json:"step_order"`
	DelayMinutes       int        `json:"delay_minutes"`
	TargetType         TargetType `json:"target_type"`
	TargetID           string     `json:"target_id"`
	NotifyOnlyTeamLead bool       `json:"notify_only_team_lead"`
	// NotificationChannels replaces the recipient's default channel order when non-empty.
	NotificationChannels []ChannelKind `json:"notification_channels,omitempty"`
}

// Step returns the step at index i.
func (p *EscalationPolicy) Step(i int) (EscalationStep, bool) {
	if p == nil || i < 0 || i >= len(p.Steps) {
		return EscalationStep{}, false
	}
	return p.Steps[i], true
}

// IsLastStep reports whether i is the final step index.
func (p *EscalationPolicy) IsLastStep(i int) bool {
	return p == nil || i >= len(p.Steps)-1
}

// Validate checks the step's target, delay and channel override.
func (s EscalationStep) Validate() error {
	if !s.TargetType.IsValid() {
		return fmt.Errorf("invalid target type %q", s.TargetType)
	}
	if s.TargetID == "" {
		return errors.New("target id is required")
	}
	if s.DelayMinutes < 0 {
		return errors.New("delay must not be negative")
	}
	if s.NotifyOnlyTeamLead && s.TargetType != TargetTypeTeam {
		return errors.New("notify only team lead applies to team targets")
	}
	for _, ch := range s.NotificationChannels {
		if !ch.IsUserChannel() {
			return fmt.Errorf("channel %q cannot be used for escalation", ch)
		}
	}
	return nil
}

// DropInvalidChannels removes override channels that cannot reach a user
// and returns the removed kinds.
func (s *EscalationStep) DropInvalidChannels() []ChannelKind {
	var dropped []ChannelKind
	kept := s.NotificationChannels[:0]
	for _, ch := range s.NotificationChannels {
		if ch.IsUserChannel() {
			kept = append(kept, ch)
		} else {
			dropped = append(dropped, ch)
		}
	}
	s.NotificationChannels = kept
	return dropped
}
