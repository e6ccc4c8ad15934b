// Package session manages the optional TMDB account link: the
// three-step token approval handshake, the persisted session record
// and the cached set of movies the user has already rated.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ld100/cinefilter/internal/database"
	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/tmdb"
)

// Step is the current position in the account-linking handshake.
type Step string

const (
	StepIdle             Step = "idle"
	StepAwaitingApproval Step = "awaiting_approval"
	StepConnecting       Step = "connecting"
	StepConnected        Step = "connected"
	StepError            Step = "error"
)

// ratedCacheTTL is how long a fetched rated-movies set stays fresh
// before the per-account pages are walked again.
const ratedCacheTTL = time.Hour

type ratedCache struct {
	IDs       []int     `json:"ids"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a snapshot of the machine for the API layer.
type Status struct {
	Step       Step            `json:"step"`
	Error      string          `json:"error,omitempty"`
	Session    *models.Session `json:"session,omitempty"`
	RatedCount int             `json:"rated_count"`
}

// Manager drives the account-linking state machine:
//
//	idle -> awaitingApproval -> connecting -> connected
//
// with an error state reachable from awaitingApproval and connecting,
// recoverable by calling StartAuth again. The only way back from
// connected is an explicit Disconnect.
type Manager struct {
	tmdb   *tmdb.Client
	states *database.StateRepo
	logger *slog.Logger

	mu           sync.Mutex
	step         Step
	lastErr      string
	pendingToken string
	session      *models.Session
	ratedIDs     map[int]struct{}
	ratedAt      time.Time
}

// NewManager restores the machine from persisted state: a stored
// session record starts it in connected, otherwise idle. Reads are
// best-effort; anything malformed counts as nothing stored.
func NewManager(client *tmdb.Client, states *database.StateRepo, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		tmdb:   client,
		states: states,
		logger: logger.With(slog.String("component", "session")),
		step:   StepIdle,
	}

	ctx := context.Background()

	var sess models.Session
	if ok, err := states.Get(ctx, database.KeySession, &sess); err != nil {
		m.logger.Warn("failed to load persisted session", slog.String("error", err.Error()))
	} else if ok && sess.SessionID != "" {
		m.session = &sess
		m.step = StepConnected
	}

	var cached ratedCache
	if ok, err := states.Get(ctx, database.KeyRatedMovies, &cached); err != nil {
		m.logger.Warn("failed to load rated-movies cache", slog.String("error", err.Error()))
	} else if ok && time.Since(cached.Timestamp) <= ratedCacheTTL {
		m.ratedIDs = toSet(cached.IDs)
		m.ratedAt = cached.Timestamp
	}

	return m
}

// StartAuth requests a temporary token and returns the browser URL
// where the user approves it. Valid from idle and from error (retry);
// a connected account must be disconnected first.
func (m *Manager) StartAuth(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.step == StepConnected {
		m.mu.Unlock()
		return "", errors.New("account already connected; disconnect first")
	}
	m.step = StepAwaitingApproval
	m.lastErr = ""
	m.mu.Unlock()

	token, err := m.tmdb.CreateRequestToken(ctx)
	if err != nil {
		m.fail(fmt.Sprintf("failed to start authentication: %v", err))
		return "", err
	}

	m.mu.Lock()
	m.pendingToken = token
	m.mu.Unlock()

	return tmdb.ApprovalURL(token), nil
}

// ConfirmApproval exchanges the approved token for a session, fetches
// the account identifier and persists the combined record.
func (m *Manager) ConfirmApproval(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	token := m.pendingToken
	if token == "" {
		m.mu.Unlock()
		return nil, errors.New("no pending approval; start authentication first")
	}
	m.step = StepConnecting
	m.lastErr = ""
	m.mu.Unlock()

	sessionID, err := m.tmdb.CreateSession(ctx, token)
	if err != nil {
		m.fail(fmt.Sprintf("failed to create session: %v", err))
		return nil, err
	}

	accountID, err := m.tmdb.GetAccountID(ctx, sessionID)
	if err != nil {
		m.fail(fmt.Sprintf("failed to fetch account: %v", err))
		return nil, err
	}

	sess := models.Session{SessionID: sessionID, AccountID: accountID}
	if err := m.states.Set(ctx, database.KeySession, sess); err != nil {
		// The link itself succeeded; it just won't survive a restart.
		m.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.session = &sess
	m.pendingToken = ""
	m.step = StepConnected
	m.mu.Unlock()

	m.logger.Info("account linked", slog.Int("account_id", accountID))
	return &sess, nil
}

// RefreshRatedMovies returns the set of movie ids the user has rated.
// A cached set captured within the freshness window is returned as is;
// otherwise the per-account pages are walked to exhaustion and the
// result persisted with a fresh timestamp. With no connected session
// it returns an empty set and no error.
func (m *Manager) RefreshRatedMovies(ctx context.Context) (map[int]struct{}, error) {
	m.mu.Lock()
	sess := m.session
	if sess == nil {
		m.mu.Unlock()
		return map[int]struct{}{}, nil
	}
	if m.ratedIDs != nil && time.Since(m.ratedAt) <= ratedCacheTTL {
		ids := copySet(m.ratedIDs)
		m.mu.Unlock()
		return ids, nil
	}
	m.mu.Unlock()

	var cached ratedCache
	if ok, err := m.states.Get(ctx, database.KeyRatedMovies, &cached); err == nil && ok &&
		time.Since(cached.Timestamp) <= ratedCacheTTL {
		ids := toSet(cached.IDs)
		m.mu.Lock()
		m.ratedIDs = ids
		m.ratedAt = cached.Timestamp
		m.mu.Unlock()
		return copySet(ids), nil
	}

	ids, err := m.tmdb.FetchAllRatedMovieIDs(ctx, sess.SessionID, sess.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rated movies: %w", err)
	}

	now := time.Now()
	if err := m.states.Set(ctx, database.KeyRatedMovies, ratedCache{IDs: toSorted(ids), Timestamp: now}); err != nil {
		m.logger.Warn("failed to persist rated-movies cache", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.ratedIDs = ids
	m.ratedAt = now
	m.mu.Unlock()

	return copySet(ids), nil
}

// RatedIDs returns the in-memory rated set without touching the
// network. It may be empty when nothing has been fetched yet.
func (m *Manager) RatedIDs() map[int]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySet(m.ratedIDs)
}

// Disconnect clears the persisted session and rated-movies cache and
// resets the machine to idle. In-memory state is cleared even when the
// deletes fail; no network call is made.
func (m *Manager) Disconnect(ctx context.Context) {
	if err := m.states.Delete(ctx, database.KeySession); err != nil {
		m.logger.Warn("failed to delete persisted session", slog.String("error", err.Error()))
	}
	if err := m.states.Delete(ctx, database.KeyRatedMovies); err != nil {
		m.logger.Warn("failed to delete rated-movies cache", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.session = nil
	m.ratedIDs = nil
	m.ratedAt = time.Time{}
	m.pendingToken = ""
	m.step = StepIdle
	m.lastErr = ""
	m.mu.Unlock()

	m.logger.Info("account disconnected")
}

// Status reports the machine's current snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Step: m.step, Error: m.lastErr, RatedCount: len(m.ratedIDs)}
	if m.session != nil {
		sess := *m.session
		st.Session = &sess
	}
	return st
}

func (m *Manager) fail(msg string) {
	m.mu.Lock()
	m.step = StepError
	m.lastErr = msg
	m.mu.Unlock()
	m.logger.Warn("account linking failed", slog.String("error", msg))
}

func toSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func toSorted(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func copySet(set map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}
