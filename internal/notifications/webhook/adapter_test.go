package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() notifications.RetryConfig {
	return notifications.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffMultiplier: 2}
}

func testMessage(url string) notifications.Message {
	assignee := "user-7"
	acked := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	return notifications.Message{
		To:            url,
		SigningSecret: "topsecret",
		Event:         notifications.EventAcknowledged,
		Incident: notifications.IncidentSnapshot{
			ID:             "inc-1",
			Title:          "Database down",
			Status:         domain.IncidentStatusAcknowledged,
			Urgency:        domain.UrgencyHigh,
			ServiceID:      "svc-1",
			ServiceName:    "Payments",
			AssigneeID:     &assignee,
			CreatedAt:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			AcknowledgedAt: &acked,
		},
	}
}

func TestAdapter_Send_SignedPayload(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 6, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "sha256="+Sign("topsecret", body), r.Header.Get(HeaderSignature))
		assert.Equal(t, "1704110760000", r.Header.Get(HeaderTimestamp))
		assert.NotEmpty(t, r.Header.Get(HeaderDelivery))

		var payload Payload
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "incident.acknowledged", payload.Event.Type)
		assert.Equal(t, "inc-1", payload.Incident.ID)
		assert.Equal(t, "acknowledged", payload.Incident.Status)
		assert.Equal(t, ServiceInfo{ID: "svc-1", Name: "Payments"}, payload.Incident.Service)
		require.NotNil(t, payload.Incident.Assignee)
		assert.Equal(t, "user-7", *payload.Incident.Assignee)
		assert.Nil(t, payload.Incident.Timestamps.Resolved)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	adapter := NewAdapter(Config{Retry: fastRetry()})
	adapter.now = func() time.Time { return fixed }

	res := adapter.Send(context.Background(), testMessage(server.URL))
	assert.True(t, res.Success, res.Error)
}

func TestAdapter_Send_NoSecretNoSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(HeaderSignature))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := testMessage(server.URL)
	msg.SigningSecret = ""

	res := NewAdapter(Config{Retry: fastRetry()}).Send(context.Background(), msg)
	assert.True(t, res.Success)
}

func TestAdapter_Send_Retries(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []int
		wantSuccess   bool
		wantRetryable bool
		wantCalls     int32
	}{
		{
			name:        "recovers after server errors",
			statuses:    []int{http.StatusBadGateway, http.StatusTooManyRequests, http.StatusOK},
			wantSuccess: true,
			wantCalls:   3,
		},
		{
			name:          "gives up after max attempts",
			statuses:      []int{500, 500, 500, 500},
			wantRetryable: true,
			wantCalls:     3,
		},
		{
			name:      "client error is permanent",
			statuses:  []int{http.StatusBadRequest, http.StatusOK},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := calls.Add(1)
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer server.Close()

			res := NewAdapter(Config{Retry: fastRetry()}).Send(context.Background(), testMessage(server.URL))

			assert.Equal(t, tt.wantSuccess, res.Success)
			if !tt.wantSuccess {
				assert.Equal(t, tt.wantRetryable, res.Retryable)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestAdapter_Send_EmptyURL(t *testing.T) {
	res := NewAdapter(Config{}).Send(context.Background(), notifications.Message{})
	assert.False(t, res.Success)
	assert.Equal(t, "webhook URL is empty", res.Error)
}

func TestSign(t *testing.T) {
	// echo -n 'hello' | openssl dgst -sha256 -hmac 'key'
	assert.Equal(t, "9307b3b915efb5171ff14d8cb55fbcc798c6c0ef1456d66ded1a6aa723a58b7b", Sign("key", []byte("hello")))
}
