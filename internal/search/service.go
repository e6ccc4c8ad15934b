// Package search drives the discovery-and-verification pipeline: it
// aggregates enough native catalog pages to fill the requested display
// page, then verifies each candidate against OMDb one at a time,
// publishing incremental state after every round-trip.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ld100/cinefilter/internal/metrics"
	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/movie"
	"github.com/ld100/cinefilter/internal/omdb"
	"github.com/ld100/cinefilter/internal/tmdb"
)

// sessionRetention is how long finished sessions stay queryable before
// a later search prunes them.
const sessionRetention = time.Hour

// Service runs searches. At most one search is active at a time:
// starting a new one cancels the previous session's scope before the
// new pipeline begins, so only the latest search ever publishes state.
type Service struct {
	tmdb   *tmdb.Client
	omdb   *omdb.Client
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	current  *Session
}

func NewService(tmdbClient *tmdb.Client, omdbClient *omdb.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tmdb:     tmdbClient,
		omdb:     omdbClient,
		logger:   logger.With(slog.String("component", "search")),
		sessions: make(map[string]*Session),
	}
}

// Search starts a new search for the given criteria and display page,
// cancelling any search still in flight. The returned session exposes
// the Updates channel and point-in-time snapshots; the pipeline runs
// until completion or cancellation.
func (s *Service) Search(filters models.Filters, page int) *Session {
	if page < 1 {
		page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = models.DefaultPageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:           uuid.New().String(),
		StartedAt:    time.Now(),
		Updates:      make(chan Update, 256),
		filters:      filters,
		page:         page,
		cancel:       cancel,
		verification: make(map[int]models.VerifyStatus),
		loading:      true,
	}

	s.mu.Lock()
	if s.current != nil {
		s.current.Cancel()
	}
	s.current = sess
	s.sessions[sess.ID] = sess
	for id, old := range s.sessions {
		if old != sess && time.Since(old.StartedAt) > sessionRetention {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	metrics.SearchesStartedTotal.Inc()
	metrics.ActiveSearches.Inc()
	s.logger.Info("search started",
		slog.String("session_id", sess.ID),
		slog.Int("page", page),
		slog.Int("page_size", filters.PageSize))

	go s.run(ctx, sess)
	return sess
}

// Cancel signals the active search's cancellation scope, if any. Safe
// to call with no search in flight.
func (s *Service) Cancel() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess != nil {
		sess.Cancel()
	}
}

// CancelSession cancels the session with the given id.
func (s *Service) CancelSession(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.Cancel()
	return true
}

// Session looks up a session by id.
func (s *Service) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// run is the pipeline for one search. Every suspension point checks
// the cancellation scope first; once the scope is signalled the loop
// exits without publishing anything further, leaving the session's
// loading flag for the superseding search to overwrite.
func (s *Service) run(ctx context.Context, sess *Session) {
	defer close(sess.Updates)
	defer metrics.ActiveSearches.Dec()

	agg, err := s.fetchPages(ctx, sess.filters, sess.page)
	if err != nil {
		if canceled(ctx, err) {
			metrics.SearchesCancelledTotal.Inc()
			return
		}
		s.logger.Warn("search aggregation failed",
			slog.String("session_id", sess.ID), slog.String("error", err.Error()))
		sess.setError(err.Error())
		sess.publish(Update{Type: "error", Data: sess.Snapshot()})
		return
	}
	if ctx.Err() != nil {
		metrics.SearchesCancelledTotal.Inc()
		return
	}

	enriched := make([]models.EnrichedMovie, len(agg.results))
	for i, m := range agg.results {
		enriched[i] = movie.Enrich(m)
	}
	sess.setResults(enriched, agg.totalPages, agg.totalResults)
	sess.publish(Update{Type: "results", Data: sess.Snapshot()})

	verified, mismatched := 0, 0
	for _, m := range enriched {
		if ctx.Err() != nil {
			metrics.SearchesCancelledTotal.Inc()
			return
		}

		result, err := s.verifyOne(ctx, m, sess.filters)
		if err != nil || ctx.Err() != nil {
			metrics.SearchesCancelledTotal.Inc()
			return
		}

		switch result.Status {
		case models.StatusVerified:
			verified++
		case models.StatusMismatch:
			mismatched++
		}
		metrics.VerificationOutcomesTotal.WithLabelValues(string(result.Status)).Inc()

		stats := models.SearchStats{
			Verified:   verified,
			Mismatched: mismatched,
			Pending:    len(enriched) - verified - mismatched,
		}
		sess.applyResult(result, stats)
		sess.publish(Update{Type: "movie", Data: MovieUpdate{Movie: result, Stats: stats}})
	}

	sess.finish()
	sess.publish(Update{Type: "done", Data: sess.statsCopy()})
	s.logger.Info("search finished",
		slog.String("session_id", sess.ID),
		slog.Int("verified", verified),
		slog.Int("mismatched", mismatched),
		slog.Int("total", len(enriched)))
}

type aggregate struct {
	results      []models.Movie
	totalResults int
	totalPages   int
}

// fetchPages pulls enough consecutive native catalog pages to fill one
// display page. With pageSize 50, display page 2 maps to native pages
// 4 through 6 and the concatenated list is trimmed to exactly 50. The
// display-level page count intentionally mixes the native page total
// with the raw result total; the formula is part of the observable
// contract even when the catalog's result count is approximate.
func (s *Service) fetchPages(ctx context.Context, filters models.Filters, page int) (aggregate, error) {
	pageSize := filters.PageSize
	native := tmdb.NativePageSize()
	needed := (pageSize + native - 1) / native
	start := (page-1)*needed + 1

	var all []models.Movie
	totalResults := 0
	nativeTotal := 0

	for i := 0; i < needed; i++ {
		if ctx.Err() != nil {
			break
		}
		nativePage := start + i
		resp, err := s.tmdb.Discover(ctx, filters, nativePage)
		if err != nil {
			return aggregate{}, err
		}
		totalResults = resp.TotalResults
		nativeTotal = min(resp.TotalPages, tmdb.MaxNativePages())
		all = append(all, resp.Results...)

		if nativePage >= nativeTotal {
			break
		}
	}

	if len(all) > pageSize {
		all = all[:pageSize]
	}

	displayTotal := (min(nativeTotal*native, totalResults) + pageSize - 1) / pageSize
	return aggregate{results: all, totalResults: totalResults, totalPages: displayTotal}, nil
}

// verifyOne runs one candidate's verification round-trip: the detail
// fetch for the IMDB id and regional availability, then the OMDb
// lookup. Per-item failures are folded into the returned movie as an
// error outcome; the returned error is non-nil only for cancellation.
func (s *Service) verifyOne(ctx context.Context, m models.EnrichedMovie, filters models.Filters) (models.EnrichedMovie, error) {
	details, err := s.tmdb.GetDetails(ctx, m.ID)
	if err != nil {
		if canceled(ctx, err) {
			return m, err
		}
		return verifyError(m, err), nil
	}

	imdbID := details.ExternalIDs.IMDBID
	providers := details.FlatrateProviders(filters.WatchRegion)

	if imdbID == "" {
		return movie.BuildOutcome(m, nil, "", providers, filters), nil
	}

	resp, err := s.omdb.GetByIMDbID(ctx, imdbID)
	if err != nil {
		if canceled(ctx, err) {
			return m, err
		}
		return verifyError(m, err), nil
	}

	parsed := omdb.Parse(resp)
	return movie.BuildOutcome(m, &parsed, imdbID, providers, filters), nil
}

func verifyError(m models.EnrichedMovie, err error) models.EnrichedMovie {
	m.Providers = nil
	m.Status = models.StatusError
	m.ErrorMessage = err.Error()
	return m
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
