package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig tunes the middleware chain.
type RouterConfig struct {
	// RateLimit is requests per second across all clients; zero
	// disables limiting.
	RateLimit      float64
	RateLimitBurst int

	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

func NewRouter(app *App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(app.Logger))
	r.Use(metricsMiddleware)
	if cfg.RateLimit > 0 {
		r.Use(rateLimitMiddleware(cfg.RateLimit, cfg.RateLimitBurst))
	}

	r.Get("/ping", PingHandler)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/filters", app.FiltersHandler)

		r.Post("/search", app.StartSearchHandler)
		r.Get("/search/{sessionID}", app.SearchSnapshotHandler)
		r.Get("/search/{sessionID}/events", app.SearchEventsHandler)
		r.Post("/search/{sessionID}/cancel", app.CancelSearchHandler)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", app.SessionStatusHandler)
			r.Post("/start", app.StartAuthHandler)
			r.Post("/confirm", app.ConfirmAuthHandler)
			r.Post("/refresh-rated", app.RefreshRatedHandler)
			r.Post("/disconnect", app.DisconnectHandler)
		})
	})

	return r
}
