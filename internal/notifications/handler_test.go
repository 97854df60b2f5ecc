package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(services *mockServices, audit *mockAudit) http.Handler {
	r := chi.NewRouter()
	registry := NewRegistry(newMockAdapter(domain.ChannelKindEmail, Delivered()))
	NewHandler(NewService(audit, services, registry)).RegisterRoutes(r)
	return r
}

func TestHandler_SetIntegrations(t *testing.T) {
	services := newMockServices()
	services.services["svc-1"] = &domain.Service{ID: "svc-1"}
	router := newTestRouter(services, &mockAudit{})

	tests := []struct {
		name       string
		serviceID  string
		body       string
		wantStatus int
	}{
		{
			name:       "valid slack webhook",
			serviceID:  "svc-1",
			body:       `{"integrations":[{"kind":"slack_webhook","slack_webhook":{"url":"https://hooks.slack.test/a"}}]}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown kind",
			serviceID:  "svc-1",
			body:       `{"integrations":[{"kind":"pager","webhook":{"url":"https://x.test"}}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "config does not match kind",
			serviceID:  "svc-1",
			body:       `{"integrations":[{"kind":"webhook","slack_channel":{"channel_id":"C1"}}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			serviceID:  "svc-1",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown service",
			serviceID:  "svc-404",
			body:       `{"integrations":[]}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/services/"+tt.serviceID+"/integrations", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	require.Len(t, services.services["svc-1"].Integrations, 1)
	assert.True(t, services.services["svc-1"].Integrations[0].Enabled)
}

func TestHandler_ListNotifications(t *testing.T) {
	audit := &mockAudit{records: []domain.NotificationRecord{
		{ID: "n1", IncidentID: "inc-1", Channel: domain.ChannelKindEmail, Outcome: domain.DeliveryOutcomeSent},
		{ID: "n2", IncidentID: "inc-2", Channel: domain.ChannelKindSMS, Outcome: domain.DeliveryOutcomeFailed},
	}}
	router := newTestRouter(newMockServices(), audit)

	req := httptest.NewRequest(http.MethodGet, "/notifications?incident_id=inc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []domain.NotificationRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "n1", resp.Data[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/notifications?limit=zero", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListProviders(t *testing.T) {
	router := newTestRouter(newMockServices(), &mockAudit{})

	req := httptest.NewRequest(http.MethodGet, "/notifications/providers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"channel":"email","enabled":true}]}`, rec.Body.String())
}
