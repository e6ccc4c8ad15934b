package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ld100/cinefilter/internal/api"
	"github.com/ld100/cinefilter/internal/database"
	"github.com/ld100/cinefilter/internal/metrics"
	"github.com/ld100/cinefilter/internal/omdb"
	"github.com/ld100/cinefilter/internal/search"
	"github.com/ld100/cinefilter/internal/session"
	"github.com/ld100/cinefilter/internal/tmdb"
)

// credentials are the upstream API keys, either from the environment
// or persisted from a previous run.
type credentials struct {
	TMDBAPIKey string `json:"tmdb_api_key"`
	OMDBAPIKey string `json:"omdb_api_key"`
}

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics.Register(registry)

	port := getEnv("PORT", "8080")

	dbConfig := database.Config{Type: getEnv("DB_TYPE", "sqlite")}
	if dbConfig.Type == "postgres" {
		dbConfig.Host = getEnv("DB_HOST", "localhost")
		dbConfig.Port = getEnvInt("DB_PORT", 5432)
		dbConfig.User = getEnv("DB_USER", "cinefilter")
		dbConfig.Password = getEnv("DB_PASSWORD", "cinefilter_dev")
		dbConfig.Name = getEnv("DB_NAME", "cinefilter")
	} else {
		dbConfig.SQLitePath = getEnv("DB_PATH", "./cinefilter.db")
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	states := database.NewStateRepo(db, logger)
	creds := resolveCredentials(logger, states)
	if creds.TMDBAPIKey == "" {
		logger.Error("TMDB_API_KEY is required")
		os.Exit(1)
	}
	if creds.OMDBAPIKey == "" {
		logger.Error("OMDB_API_KEY is required")
		os.Exit(1)
	}

	tmdbClient := tmdb.NewClient(creds.TMDBAPIKey, logger)
	omdbClient := omdb.NewClient(creds.OMDBAPIKey, logger)

	app := &api.App{
		Search:   search.NewService(tmdbClient, omdbClient, logger),
		Sessions: session.NewManager(tmdbClient, states, logger),
		Logger:   logger,
	}

	router := api.NewRouter(app, api.RouterConfig{
		RateLimit:      getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting",
			slog.String("port", port),
			slog.String("dbType", dbConfig.Type))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}

// resolveCredentials prefers the environment; keys found there are
// persisted so later runs can start without them.
func resolveCredentials(logger *slog.Logger, states *database.StateRepo) credentials {
	ctx := context.Background()

	var stored credentials
	if _, err := states.Get(ctx, database.KeyCredentials, &stored); err != nil {
		logger.Warn("failed to load stored credentials", slog.String("error", err.Error()))
	}

	creds := credentials{
		TMDBAPIKey: getEnv("TMDB_API_KEY", stored.TMDBAPIKey),
		OMDBAPIKey: getEnv("OMDB_API_KEY", stored.OMDBAPIKey),
	}

	if creds != stored && creds.TMDBAPIKey != "" && creds.OMDBAPIKey != "" {
		if err := states.Set(ctx, database.KeyCredentials, creds); err != nil {
			logger.Warn("failed to persist credentials", slog.String("error", err.Error()))
		}
	}
	return creds
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
