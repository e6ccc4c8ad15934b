package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/search"
	"github.com/ld100/cinefilter/internal/session"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// App bundles the services the handlers work against.
type App struct {
	Search   *search.Service
	Sessions *session.Manager
	Logger   *slog.Logger
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// FiltersHandler exposes the selectable filter options and the default
// selection so the client can build its filter panel.
func (app *App) FiltersHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"defaults":   models.DefaultFilters(),
		"genres":     models.Genres,
		"providers":  models.KnownProviders,
		"regions":    models.WatchRegions,
		"page_sizes": models.PageSizes,
	})
}
