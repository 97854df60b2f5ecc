package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{Enabled: true, AppID: "app-1", APIKey: "key-1", BaseURL: baseURL})
	require.NoError(t, err)
	return a
}

func testMessage() notifications.Message {
	return notifications.Message{
		To:           "user-1",
		DeviceTokens: []string{"player-a", "player-b"},
		Subject:      "[Triggered] Database down",
		Body:         "TRIGGERED: Database down",
		Event:        notifications.EventTriggered,
		Incident: notifications.IncidentSnapshot{
			ID:      "inc-1",
			Urgency: domain.UrgencyHigh,
			URL:     "https://escalator.example.com/incidents/inc-1",
		},
	}
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(Config{Enabled: true, AppID: "app"})
	assert.ErrorContains(t, err, "api key")

	a, err := NewAdapter(Config{})
	require.NoError(t, err)
	assert.False(t, a.Enabled())
	assert.Equal(t, domain.ChannelKindPush, a.Kind())
}

func TestAdapter_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications", r.URL.Path)
		assert.Equal(t, "Basic key-1", r.Header.Get("Authorization"))

		var req notificationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "app-1", req.AppID)
		assert.Equal(t, []string{"player-a", "player-b"}, req.IncludePlayerIDs)
		assert.Equal(t, "[Triggered] Database down", req.Headings["en"])
		assert.Equal(t, "inc-1", req.Data["incident_id"])
		assert.Equal(t, 10, req.Priority)

		_, _ = w.Write([]byte(`{"id":"notif-1","recipients":2}`))
	}))
	defer server.Close()

	res := newTestAdapter(t, server.URL).Send(context.Background(), testMessage())
	assert.True(t, res.Success, res.Error)
}

func TestAdapter_Send_NoDevices(t *testing.T) {
	msg := testMessage()
	msg.DeviceTokens = nil

	res := newTestAdapter(t, "http://unused.invalid").Send(context.Background(), msg)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no registered push devices")
}

func TestAdapter_Send_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"all players invalid", http.StatusOK, `{"id":"","recipients":0,"errors":{"invalid_player_ids":["player-a"]}}`, false},
		{"bad request", http.StatusBadRequest, `{"errors":["app_id not found"]}`, false},
		{"provider outage", http.StatusBadGateway, ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			res := newTestAdapter(t, server.URL).Send(context.Background(), testMessage())

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
		})
	}
}
