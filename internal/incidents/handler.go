package incidents

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
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrServiceNotFound, Status: http.StatusNotFound, Message: "service not found"},
	{Error: ErrEmptyUpdate, Status: http.StatusBadRequest},
	{Error: ErrInvalidSnooze, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}", h.UpdateIncident)
		r.Get("/{id}/timeline", h.GetTimeline)
		r.Get("/{id}/notifications", h.ListNotifications)
	})
}

// CreateIncidentRequest represents request body for creating an incident.
type CreateIncidentRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=500"`
	Description string  `json:"description"`
	ServiceID   string  `json:"service_id" validate:"required,uuid"`
	Urgency     string  `json:"urgency" validate:"omitempty,oneof=high medium low"`
	AssigneeID  *string `json:"assignee_id" validate:"omitempty,uuid"`
}

// UpdateIncidentRequest represents request body for a partial incident update.
type UpdateIncidentRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=open acknowledged resolved snoozed suppressed"`
	Urgency       *string `json:"urgency" validate:"omitempty,oneof=high medium low"`
	AssigneeID    *string `json:"assignee_id" validate:"omitempty,uuid"`
	SnoozeMinutes *int    `json:"snooze_minutes" validate:"omitempty,min=1,max=10080"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		ServiceID:   req.ServiceID,
		Urgency:     domain.Urgency(req.Urgency),
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := IncidentFilters{ServiceID: q.Get("service_id")}
	if raw := q.Get("status"); raw != "" {
		status := domain.IncidentStatus(raw)
		filters.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filters.Offset = offset
	}

	incidents, err := h.service.ListIncidents(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncident handles PATCH /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateIncidentInput{
		AssigneeID:    req.AssigneeID,
		SnoozeMinutes: req.SnoozeMinutes,
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}
	if req.Urgency != nil {
		urgency := domain.Urgency(*req.Urgency)
		input.Urgency = &urgency
	}

	incident, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// GetTimeline handles GET /incidents/{id}/timeline.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ListNotifications handles GET /incidents/{id}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Notifications(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, records)
}
