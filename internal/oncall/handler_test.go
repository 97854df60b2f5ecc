package oncall

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(dir Directory, now time.Time) http.Handler {
	h := NewHandler(NewService(dir))
	h.now = func() time.Time { return now }
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandler_WhoIsOnCall(t *testing.T) {
	dir := newMockDirectory()
	dir.schedules["s1"] = &domain.OnCallSchedule{
		ID: "s1",
		Layers: []domain.ScheduleLayer{
			{ID: "l1", Start: rotationStart, RotationLengthHours: 24, UserIDs: []string{"a", "b"}},
		},
	}
	router := newTestRouter(dir, rotationStart.Add(time.Hour))

	t.Run("defaults to now", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules/s1/oncall", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data OnCallResult `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, []string{"a"}, resp.Data.UserIDs)
	})

	t.Run("explicit time", func(t *testing.T) {
		at := rotationStart.Add(25 * time.Hour).Format(time.RFC3339)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules/s1/oncall?at="+at, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data OnCallResult `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, []string{"b"}, resp.Data.UserIDs)
	})

	t.Run("invalid time", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules/s1/oncall?at=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown schedule", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules/nope/oncall", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
