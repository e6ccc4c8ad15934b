package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/movie"
)

type searchRequest struct {
	Filters models.Filters `json:"filters"`
	Page    int            `json:"page"`
}

// StartSearchHandler kicks off a search and returns the session id.
// Any search still in flight is cancelled first; progressive state is
// consumed through the events stream or polled via the snapshot.
func (app *App) StartSearchHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Filters.PageSize == 0 {
		req.Filters.PageSize = models.DefaultPageSize
	}
	if !models.ValidPageSize(req.Filters.PageSize) {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported page size %d", req.Filters.PageSize))
		return
	}
	if req.Filters.YearFrom > req.Filters.YearTo {
		respondError(w, http.StatusBadRequest, "year range is inverted")
		return
	}

	sess := app.Search.Search(req.Filters, req.Page)
	respondJSON(w, http.StatusAccepted, map[string]string{"session_id": sess.ID})
}

// CancelSearchHandler cancels a running search by session id.
func (app *App) CancelSearchHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !app.Search.CancelSession(sessionID) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// SearchSnapshotHandler returns the point-in-time state of a search,
// with the result set partitioned into display buckets. The watched
// bucket is only populated when the filters ask for it and an account
// is linked.
func (app *App) SearchSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := app.Search.Session(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	snap := sess.Snapshot()
	filters := sess.Filters()

	var watched map[int]struct{}
	if filters.HideWatched {
		watched = app.Sessions.RatedIDs()
	}
	buckets := movie.Categorize(snap.Movies, snap.Verification, filters.IMDBCutoff, watched)

	respondJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap,
		"buckets":  buckets,
	})
}

// SearchEventsHandler streams a search's progressive updates as
// server-sent events until the pipeline finishes or the client
// disconnects.
func (app *App) SearchEventsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := app.Search.Session(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-sess.Updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				app.Logger.Warn("failed to marshal update", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}
