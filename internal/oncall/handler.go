package oncall

import (
	"net/http"
	"time"

	"github.com/bissquit/incident-escalator/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrScheduleNotFound, Status: http.StatusNotFound, Message: "schedule not found"},
}

// Handler handles HTTP requests for on-call schedules.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates a new on-call handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		now:     time.Now,
	}
}

// RegisterRoutes registers on-call routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/schedules/{id}", h.GetSchedule)
	r.Get("/schedules/{id}/oncall", h.WhoIsOnCall)
}

// GetSchedule handles GET /schedules/{id}.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, schedule)
}

// WhoIsOnCall handles GET /schedules/{id}/oncall?at=RFC3339.
func (h *Handler) WhoIsOnCall(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "at must be an RFC3339 timestamp")
			return
		}
		at = parsed
	}

	result, err := h.service.WhoIsOnCall(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}
