package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds and returns the Chi router with all routes configured.
// The two HTML views sit at the root; the browser drives them through /api/v1.
func NewRouter(handlers *Handlers, sessions SessionStore, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))

	r.Get("/", handlers.ListPage)
	r.Get("/weather", handlers.WeatherPage)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandlerFunc(sessions))
		r.Get("/weather", handlers.GetWeather)

		r.Post("/sessions", handlers.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetSession)
			r.Delete("/", handlers.DeleteSession)
			r.Put("/query", handlers.UpdateQuery)
			r.Post("/scroll", handlers.Scroll)
		})
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
