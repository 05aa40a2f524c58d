package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/neexbeast/city-weather/internal/search"
	"github.com/neexbeast/city-weather/internal/session"
	"github.com/neexbeast/city-weather/internal/weather"
)

var validate = validator.New()

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	sessions SessionStore
	weather  WeatherFetcher
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(sessions SessionStore, weather WeatherFetcher, log *slog.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		weather:  weather,
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type sessionResponse struct {
	ID    string       `json:"id"`
	State search.State `json:"state"`
}

type queryRequest struct {
	Text string `json:"text"`
}

type scrollRequest struct {
	SentinelTop    *float64 `json:"sentinel_top" validate:"required"`
	ViewportBottom *float64 `json:"viewport_bottom" validate:"required"`
}

type scrollResponse struct {
	Fetched bool         `json:"fetched"`
	State   search.State `json:"state"`
}

// controller resolves the {id} URL parameter, writing a 404 when unknown.
func (h *Handlers) controller(w http.ResponseWriter, r *http.Request) (*search.Controller, bool) {
	id := chi.URLParam(r, "id")
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			h.log.Error("session lookup failed", "session", id, "err", err)
		}
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return ctrl, true
}

// CreateSession handles POST /api/v1/sessions.
// Mounts a list view controller, which immediately fetches the first page.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, State: ctrl.State()})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: chi.URLParam(r, "id"), State: ctrl.State()})
}

// UpdateQuery handles PUT /api/v1/sessions/{id}/query.
// The raw text is echoed at once; the search commits after the debounce.
func (h *Handlers) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl.OnQueryChange(req.Text)
	writeJSON(w, http.StatusAccepted, sessionResponse{ID: chi.URLParam(r, "id"), State: ctrl.State()})
}

// Scroll handles POST /api/v1/sessions/{id}/scroll.
// The body carries the sentinel's top edge and the viewport's bottom edge.
func (h *Handlers) Scroll(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "sentinel_top and viewport_bottom are required")
		return
	}

	fetched := ctrl.OnScroll(*req.SentinelTop, *req.ViewportBottom)
	writeJSON(w, http.StatusOK, scrollResponse{Fetched: fetched, State: ctrl.State()})
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// navigate runs a fresh viewer for the request's lat, lon and name parameters.
func (h *Handlers) navigate(r *http.Request) weather.View {
	q := r.URL.Query()
	viewer := weather.NewViewer(h.weather, h.log)
	return viewer.Navigate(r.Context(), weather.NavParams{
		Lat:  q.Get("lat"),
		Lon:  q.Get("lon"),
		Name: q.Get("name"),
	})
}

// GetWeather handles GET /api/v1/weather.
// Missing coordinates report the loading state; a failed fetch is a 502.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	view := h.navigate(r)

	status := http.StatusOK
	if view.Status == weather.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, view)
}

// HealthHandlerFunc returns an http.HandlerFunc reporting liveness and the
// number of open list views.
func HealthHandlerFunc(sessions SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": sessions.Len(),
		})
	}
}
