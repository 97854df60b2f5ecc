package notifications

import (
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Len(t, r.templates, 3)
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	acked := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	snapshot := testSnapshot()
	snapshot.Description = "Primary replica is not accepting connections."
	snapshot.URL = "https://escalator.example.com/incidents/inc-1"
	snapshot.AcknowledgedAt = &acked

	tests := []struct {
		name            string
		kind            domain.ChannelKind
		event           EventKind
		step            *int
		expectedSubject string
		contains        []string
		notContains     []string
	}{
		{
			name:            "email contains full details",
			kind:            domain.ChannelKindEmail,
			event:           EventAcknowledged,
			expectedSubject: "[Acknowledged] Database down",
			contains: []string{
				"Incident Acknowledged",
				"Primary replica is not accepting connections.",
				"Service:  Payments",
				"Urgency:  High",
				"Created:  Jan 1, 2024 12:00 UTC",
				"Acknowledged: Jan 1, 2024 12:05 UTC",
				"View incident: https://escalator.example.com/incidents/inc-1",
			},
			notContains: []string{"Resolved:"},
		},
		{
			name:            "sms is short",
			kind:            domain.ChannelKindSMS,
			event:           EventTriggered,
			expectedSubject: "[Triggered] Database down",
			contains:        []string{"TRIGGERED: Database down", "Urgency: high"},
			notContains:     []string{"Primary replica"},
		},
		{
			name:            "escalation step in subject",
			kind:            domain.ChannelKindPush,
			event:           EventEscalated,
			step:            intPtr(0),
			expectedSubject: "[Escalated L1] Database down",
			contains:        []string{"ESCALATED (L1)"},
		},
		{
			name:            "slack uses chat format",
			kind:            domain.ChannelKindSlackWebhook,
			event:           EventResolved,
			expectedSubject: "[Resolved] Database down",
			contains: []string{
				"*Resolved*",
				"<https://escalator.example.com/incidents/inc-1|Database down>",
				"> Primary replica",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := NewPayload(tt.event, snapshot, tt.step)

			subject, body, err := r.Render(tt.kind, payload)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedSubject, subject)
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "Mar 5, 2024 09:30 UTC", formatTime(ts))
	assert.Equal(t, "Mar 5, 2024 09:30 UTC", formatTime(&ts))
	assert.Empty(t, formatTime((*time.Time)(nil)))
	assert.Empty(t, formatTime(time.Time{}))
	assert.Empty(t, formatTime("not a time"))
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventAcknowledged, EventForStatus(domain.IncidentStatusAcknowledged))
	assert.Equal(t, EventResolved, EventForStatus(domain.IncidentStatusResolved))
	assert.Equal(t, EventSnoozed, EventForStatus(domain.IncidentStatusSnoozed))
	assert.Equal(t, EventSuppressed, EventForStatus(domain.IncidentStatusSuppressed))
	assert.Equal(t, EventReopened, EventForStatus(domain.IncidentStatusOpen))
}

func TestIncidentURL(t *testing.T) {
	assert.Equal(t, "https://x.test/incidents/42", IncidentURL("https://x.test/", "42"))
	assert.Empty(t, IncidentURL("", "42"))
}

func intPtr(i int) *int { return &i }
