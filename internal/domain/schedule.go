package domain

import "time"

// OnCallSchedule groups independently rotating layers.
type OnCallSchedule struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	TimeZone  string             `json:"time_zone"`
	Layers    []ScheduleLayer    `json:"layers"`
	Overrides []ScheduleOverride `json:"overrides"`
}

// ScheduleLayer is one roster. UserIDs is ordered by rotation position.
type ScheduleLayer struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Start               time.Time  `json:"start"`
	End                 *time.Time `json:"end,omitempty"`
	RotationLengthHours int        `json:"rotation_length_hours"`
	UserIDs             []string   `json:"user_ids"`
}

// ScheduleOverride puts UserID on call for [Start, End).
// ReplacesUserID and LayerID, when set, narrow which layer slot is replaced.
type ScheduleOverride struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ReplacesUserID *string   `json:"replaces_user_id,omitempty"`
	LayerID        *string   `json:"layer_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// Covers reports whether the override is in effect at t.
func (o ScheduleOverride) Covers(t time.Time) bool {
	return !t.Before(o.Start) && t.Before(o.End)
}
