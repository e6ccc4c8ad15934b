package search

import (
	"context"
	"sync"
	"time"

	"github.com/ld100/cinefilter/internal/models"
)

// Update is one progressive state change published while a search
// runs. Data depends on Type: "results" and "error" carry a full
// Snapshot, "movie" carries a MovieUpdate, "done" carries final
// SearchStats.
type Update struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MovieUpdate is published after each candidate's verification
// round-trip resolves.
type MovieUpdate struct {
	Movie models.EnrichedMovie `json:"movie"`
	Stats models.SearchStats   `json:"stats"`
}

// Snapshot is the full published state of one search at a point in
// time.
type Snapshot struct {
	ID           string                      `json:"id"`
	Movies       []models.EnrichedMovie      `json:"movies"`
	Verification map[int]models.VerifyStatus `json:"verification"`
	Stats        models.SearchStats          `json:"stats"`
	Loading      bool                        `json:"loading"`
	Error        string                      `json:"error,omitempty"`
	Page         int                         `json:"page"`
	TotalPages   int                         `json:"total_pages"`
	TotalResults int                         `json:"total_results"`
}

// Session is the state of one search invocation. The pipeline mutates
// it as pages arrive and verifications resolve; readers take copies
// through Snapshot. A superseded or cancelled session stops receiving
// writes and keeps whatever had been published before cancellation.
type Session struct {
	ID        string
	StartedAt time.Time

	// Updates carries progressive changes to at most one consumer.
	// The buffer absorbs bursts; when a consumer falls further behind
	// the increment is dropped, and Snapshot remains authoritative.
	Updates chan Update

	filters models.Filters
	page    int
	cancel  context.CancelFunc

	mu           sync.RWMutex
	movies       []models.EnrichedMovie
	verification map[int]models.VerifyStatus
	stats        models.SearchStats
	loading      bool
	errMsg       string
	totalPages   int
	totalResults int
}

// Filters returns the criteria this search was invoked with.
func (s *Session) Filters() models.Filters {
	return s.filters
}

// Cancel signals the session's cancellation scope. Idempotent.
func (s *Session) Cancel() {
	s.cancel()
}

// Snapshot returns a copy of the current published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movies := make([]models.EnrichedMovie, len(s.movies))
	copy(movies, s.movies)

	verification := make(map[int]models.VerifyStatus, len(s.verification))
	for id, st := range s.verification {
		verification[id] = st
	}

	return Snapshot{
		ID:           s.ID,
		Movies:       movies,
		Verification: verification,
		Stats:        s.stats,
		Loading:      s.loading,
		Error:        s.errMsg,
		Page:         s.page,
		TotalPages:   s.totalPages,
		TotalResults: s.totalResults,
	}
}

func (s *Session) publish(u Update) {
	select {
	case s.Updates <- u:
	default:
	}
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.loading = false
	s.mu.Unlock()
}

// setResults installs the enriched page with every candidate marked
// checking and the pending counter at the full count, so all cards can
// render before verification begins.
func (s *Session) setResults(movies []models.EnrichedMovie, totalPages, totalResults int) {
	s.mu.Lock()
	s.movies = movies
	s.verification = make(map[int]models.VerifyStatus, len(movies))
	for _, m := range movies {
		s.verification[m.ID] = models.StatusChecking
	}
	s.stats = models.SearchStats{Pending: len(movies)}
	s.totalPages = totalPages
	s.totalResults = totalResults
	s.mu.Unlock()
}

// applyResult merges a resolved candidate back in place by identifier
// and refreshes the counters.
func (s *Session) applyResult(m models.EnrichedMovie, stats models.SearchStats) {
	s.mu.Lock()
	for i := range s.movies {
		if s.movies[i].ID == m.ID {
			s.movies[i] = m
			break
		}
	}
	s.verification[m.ID] = m.Status
	s.stats = stats
	s.mu.Unlock()
}

func (s *Session) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Session) statsCopy() models.SearchStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
