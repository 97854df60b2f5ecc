package oncall

import (
	"fmt"
	"slices"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// OnCallAt returns the users on call at t across every layer of the schedule.
// Each active layer names one user; a user on several layers appears once.
func OnCallAt(schedule *domain.OnCallSchedule, at time.Time) []string {
	overrides := sortedOverrides(schedule.Overrides)

	var users []string
	for _, layer := range schedule.Layers {
		userID, ok := LayerUserAt(layer, at)
		if !ok {
			continue
		}
		userID = applyOverrides(layer.ID, userID, overrides, at)
		users = appendUnique(users, userID)
	}
	return users
}

// LayerUserAt returns the rotation member on call for one layer at t,
// ignoring overrides. It returns false when the layer is inactive at t.
func LayerUserAt(layer domain.ScheduleLayer, at time.Time) (string, bool) {
	if len(layer.UserIDs) == 0 || layer.RotationLengthHours <= 0 {
		return "", false
	}
	if at.Before(layer.Start) {
		return "", false
	}
	if layer.End != nil && !at.Before(*layer.End) {
		return "", false
	}

	rotation := time.Duration(layer.RotationLengthHours) * time.Hour
	index := int(at.Sub(layer.Start)/rotation) % len(layer.UserIDs)
	return layer.UserIDs[index], true
}

// ValidateSchedule reports configuration problems that make layers contribute nobody.
func ValidateSchedule(schedule *domain.OnCallSchedule) []string {
	var problems []string
	if len(schedule.Layers) == 0 {
		problems = append(problems, "schedule has no layers")
	}
	for _, layer := range schedule.Layers {
		if len(layer.UserIDs) == 0 {
			problems = append(problems, fmt.Sprintf("layer %q has no users", layer.Name))
		}
		if layer.RotationLengthHours <= 0 {
			problems = append(problems, fmt.Sprintf("layer %q has rotation length %d", layer.Name, layer.RotationLengthHours))
		}
	}
	return problems
}

// applyOverrides replaces the layer's user with every covering override, in start order.
func applyOverrides(layerID, userID string, overrides []domain.ScheduleOverride, at time.Time) string {
	for _, o := range overrides {
		if !o.Covers(at) {
			continue
		}
		if o.LayerID != nil && *o.LayerID != layerID {
			continue
		}
		if o.ReplacesUserID != nil && *o.ReplacesUserID != userID {
			continue
		}
		userID = o.UserID
	}
	return userID
}

func sortedOverrides(overrides []domain.ScheduleOverride) []domain.ScheduleOverride {
	sorted := slices.Clone(overrides)
	slices.SortStableFunc(sorted, func(a, b domain.ScheduleOverride) int {
		return a.Start.Compare(b.Start)
	})
	return sorted
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
