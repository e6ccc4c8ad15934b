package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Well-known state keys.
const (
	KeyCredentials = "credentials"
	KeySession     = "tmdb_session"
	KeyRatedMovies = "rated_movie_ids"
)

// StateRepo is a string-keyed, JSON-valued store for the small amount
// of state that must survive restarts: API credentials, the linked
// TMDB session and the rated-movies cache. Reads are best-effort;
// malformed or missing rows read back as "nothing stored".
type StateRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewStateRepo(db *DB, logger *slog.Logger) *StateRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateRepo{db: db, logger: logger.With(slog.String("component", "state"))}
}

// Get unmarshals the stored value for key into dest. It returns false,
// without error, when nothing usable is stored under the key.
func (r *StateRepo) Get(ctx context.Context, key string, dest any) (bool, error) {
	query := `SELECT value FROM app_state WHERE key = $1`
	if r.db.dbType == "sqlite" {
		query = `SELECT value FROM app_state WHERE key = ?`
	}

	var raw string
	err := r.db.conn.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		r.logger.Warn("discarding malformed persisted state",
			slog.String("key", key), slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (r *StateRepo) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state %q: %w", key, err)
	}

	query := `
		INSERT INTO app_state (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if r.db.dbType == "sqlite" {
		query = `INSERT OR REPLACE INTO app_state (key, value, updated_at) VALUES (?, ?, ?)`
	}

	if _, err := r.db.conn.ExecContext(ctx, query, key, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting an absent key is
// not an error.
func (r *StateRepo) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM app_state WHERE key = $1`
	if r.db.dbType == "sqlite" {
		query = `DELETE FROM app_state WHERE key = ?`
	}

	if _, err := r.db.conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}
