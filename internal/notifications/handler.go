package notifications

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrServiceNotFound, Status: http.StatusNotFound, Message: "service not found"},
	{Error: ErrInvalidIntegration, Status: http.StatusBadRequest},
	{Error: ErrInvalidFilter, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.ListNotifications)
	r.Get("/notifications/providers", h.ListProviders)

	r.Get("/services/{id}/integrations", h.GetIntegrations)
	r.Put("/services/{id}/integrations", h.SetIntegrations)
}

// IntegrationRequest represents one service integration in a request body.
type IntegrationRequest struct {
	Kind         string                     `json:"kind" validate:"required,oneof=slack_webhook slack_api webhook"`
	Enabled      *bool                      `json:"enabled"`
	SlackWebhook *domain.SlackWebhookConfig `json:"slack_webhook"`
	SlackChannel *domain.SlackChannelConfig `json:"slack_channel"`
	Webhook      *domain.WebhookConfig      `json:"webhook"`
}

// SetIntegrationsRequest represents request body for replacing service integrations.
type SetIntegrationsRequest struct {
	Integrations []IntegrationRequest `json:"integrations" validate:"dive"`
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.NotificationFilter{
		IncidentID: q.Get("incident_id"),
		UserID:     q.Get("user_id"),
		Channel:    domain.ChannelKind(q.Get("channel")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.ListNotifications(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, records)
}

// ListProviders handles GET /notifications/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.service.Providers())
}

// GetIntegrations handles GET /services/{id}/integrations.
func (h *Handler) GetIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.service.GetIntegrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, integrations)
}

// SetIntegrations handles PUT /services/{id}/integrations.
func (h *Handler) SetIntegrations(w http.ResponseWriter, r *http.Request) {
	var req SetIntegrationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	integrations := make([]domain.ServiceIntegration, 0, len(req.Integrations))
	for _, item := range req.Integrations {
		enabled := true
		if item.Enabled != nil {
			enabled = *item.Enabled
		}
		integrations = append(integrations, domain.ServiceIntegration{
			Kind:         domain.ChannelKind(item.Kind),
			Enabled:      enabled,
			SlackWebhook: item.SlackWebhook,
			SlackChannel: item.SlackChannel,
			Webhook:      item.Webhook,
		})
	}

	serviceID := chi.URLParam(r, "id")
	if err := h.service.SetIntegrations(r.Context(), serviceID, integrations); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, integrations)
}
