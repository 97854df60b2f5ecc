package oncall

import (
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/stretchr/testify/assert"
)

var rotationStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestLayerUserAt(t *testing.T) {
	layer := domain.ScheduleLayer{
		ID:                  "l1",
		Start:               rotationStart,
		RotationLengthHours: 24,
		UserIDs:             []string{"alice", "bob", "carol"},
	}

	tests := []struct {
		name     string
		at       time.Time
		expected string
		ok       bool
	}{
		{"at start", rotationStart, "alice", true},
		{"inside first rotation", rotationStart.Add(23 * time.Hour), "alice", true},
		{"second rotation", rotationStart.Add(24 * time.Hour), "bob", true},
		{"third rotation", rotationStart.Add(50 * time.Hour), "carol", true},
		{"wraps around", rotationStart.Add(72 * time.Hour), "alice", true},
		{"before start", rotationStart.Add(-time.Minute), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := LayerUserAt(layer, tt.at)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, user)
		})
	}
}

func TestLayerUserAt_Inactive(t *testing.T) {
	end := rotationStart.Add(48 * time.Hour)

	t.Run("after end", func(t *testing.T) {
		layer := domain.ScheduleLayer{Start: rotationStart, End: &end, RotationLengthHours: 24, UserIDs: []string{"a"}}
		_, ok := LayerUserAt(layer, end)
		assert.False(t, ok)
	})

	t.Run("no users", func(t *testing.T) {
		layer := domain.ScheduleLayer{Start: rotationStart, RotationLengthHours: 24}
		_, ok := LayerUserAt(layer, rotationStart)
		assert.False(t, ok)
	})

	t.Run("zero rotation", func(t *testing.T) {
		layer := domain.ScheduleLayer{Start: rotationStart, UserIDs: []string{"a"}}
		_, ok := LayerUserAt(layer, rotationStart)
		assert.False(t, ok)
	})
}

func TestOnCallAt_UnionAcrossLayers(t *testing.T) {
	at := rotationStart.Add(30 * time.Hour)

	t.Run("distinct users", func(t *testing.T) {
		schedule := &domain.OnCallSchedule{
			Layers: []domain.ScheduleLayer{
				{ID: "primary", Start: rotationStart, RotationLengthHours: 24, UserIDs: []string{"a", "b"}},
				{ID: "secondary", Start: rotationStart, RotationLengthHours: 168, UserIDs: []string{"c", "d"}},
			},
		}
		assert.ElementsMatch(t, []string{"b", "c"}, OnCallAt(schedule, at))
	})

	t.Run("same user on two layers counted once", func(t *testing.T) {
		schedule := &domain.OnCallSchedule{
			Layers: []domain.ScheduleLayer{
				{ID: "primary", Start: rotationStart, RotationLengthHours: 24, UserIDs: []string{"a"}},
				{ID: "secondary", Start: rotationStart, RotationLengthHours: 12, UserIDs: []string{"a"}},
			},
		}
		assert.Equal(t, []string{"a"}, OnCallAt(schedule, at))
	})
}

func TestOnCallAt_Overrides(t *testing.T) {
	at := rotationStart.Add(2 * time.Hour)
	layers := []domain.ScheduleLayer{
		{ID: "primary", Start: rotationStart, RotationLengthHours: 24, UserIDs: []string{"a", "b"}},
		{ID: "secondary", Start: rotationStart, RotationLengthHours: 24, UserIDs: []string{"c"}},
	}

	tests := []struct {
		name      string
		overrides []domain.ScheduleOverride
		expected  []string
	}{
		{
			name: "override replaces matching user only",
			overrides: []domain.ScheduleOverride{
				{ID: "o1", UserID: "z", ReplacesUserID: strPtr("a"), Start: rotationStart, End: rotationStart.Add(4 * time.Hour)},
			},
			expected: []string{"z", "c"},
		},
		{
			name: "override scoped to a layer",
			overrides: []domain.ScheduleOverride{
				{ID: "o1", UserID: "z", LayerID: strPtr("secondary"), Start: rotationStart, End: rotationStart.Add(4 * time.Hour)},
			},
			expected: []string{"a", "z"},
		},
		{
			name: "override without constraints replaces every layer",
			overrides: []domain.ScheduleOverride{
				{ID: "o1", UserID: "z", Start: rotationStart, End: rotationStart.Add(4 * time.Hour)},
			},
			expected: []string{"z"},
		},
		{
			name: "expired override ignored",
			overrides: []domain.ScheduleOverride{
				{ID: "o1", UserID: "z", Start: rotationStart, End: rotationStart.Add(time.Hour)},
			},
			expected: []string{"a", "c"},
		},
		{
			name: "later override wins",
			overrides: []domain.ScheduleOverride{
				{ID: "o2", UserID: "y", LayerID: strPtr("primary"), Start: rotationStart.Add(time.Hour), End: rotationStart.Add(3 * time.Hour)},
				{ID: "o1", UserID: "x", LayerID: strPtr("primary"), Start: rotationStart, End: rotationStart.Add(3 * time.Hour)},
			},
			expected: []string{"y", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := &domain.OnCallSchedule{Layers: layers, Overrides: tt.overrides}
			assert.Equal(t, tt.expected, OnCallAt(schedule, at))
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.Equal(t, []string{"schedule has no layers"}, ValidateSchedule(&domain.OnCallSchedule{}))

	problems := ValidateSchedule(&domain.OnCallSchedule{
		Layers: []domain.ScheduleLayer{{Name: "empty", RotationLengthHours: 0}},
	})
	assert.Len(t, problems, 2)
}
