package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/ld100/cinefilter/internal/api"
	"github.com/ld100/cinefilter/internal/database"
	"github.com/ld100/cinefilter/internal/omdb"
	"github.com/ld100/cinefilter/internal/search"
	"github.com/ld100/cinefilter/internal/session"
	"github.com/ld100/cinefilter/internal/tmdb"
)

type TestServer struct {
	Server   *httptest.Server
	Upstream *upstream
	App      *api.App
	DB       *database.DB
}

// upstream fakes TMDB and OMDb on a single server. The catalog serves
// two native pages of two movies each; OMDb answers with a per-id year
// so individual movies can be made to mismatch.
type upstream struct {
	OMDbYears map[string]string
	RatedIDs  []int
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/discover/movie", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		base := page * 100
		fmt.Fprintf(w, `{"page":%d,"total_pages":2,"total_results":4,"results":[
			{"id":%d,"title":"Movie %d","release_date":"2022-05-01","vote_average":7.8,"genre_ids":[18]},
			{"id":%d,"title":"Movie %d","release_date":"2023-02-01","vote_average":8.1,"genre_ids":[35]}]}`,
			page, base, base, base+1, base+1)
	})

	mux.HandleFunc("/movie/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/movie/")
		fmt.Fprintf(w, `{"id":%s,"external_ids":{"imdb_id":"tt%s"},"watch/providers":{"results":{"US":{"flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}}`, id, id)
	})

	mux.HandleFunc("/authentication/token/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"request_token":"tok-int"}`))
	})
	mux.HandleFunc("/authentication/session/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"session_id":"sess-int"}`))
	})
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":99,"username":"integration"}`))
	})
	mux.HandleFunc("/account/99/rated/movies", func(w http.ResponseWriter, r *http.Request) {
		results := make([]string, len(u.RatedIDs))
		for i, id := range u.RatedIDs {
			results[i] = fmt.Sprintf(`{"id":%d,"rating":8}`, id)
		}
		fmt.Fprintf(w, `{"page":1,"total_pages":1,"total_results":%d,"results":[%s]}`,
			len(u.RatedIDs), strings.Join(results, ","))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("i")
		year := u.OMDbYears[id]
		if year == "" {
			year = "2022"
		}
		fmt.Fprintf(w, `{"Response":"True","Title":"Verified","Year":"%s","imdbRating":"7.9","imdbID":"%s","Director":"Someone","Actors":"Somebody"}`, year, id)
	})

	return mux
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	up := &upstream{OMDbYears: map[string]string{}}
	backend := httptest.NewServer(up.handler())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tmdbClient := tmdb.NewClient("test-key", logger, tmdb.WithBaseURL(backend.URL))
	omdbClient := omdb.NewClient("test-key", logger,
		omdb.WithBaseURL(backend.URL),
		omdb.WithRateLimit(rate.Inf, 1))

	db, err := database.NewDB(database.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		backend.Close()
		t.Fatalf("Failed to create database: %v", err)
	}

	states := database.NewStateRepo(db, logger)
	app := &api.App{
		Search:   search.NewService(tmdbClient, omdbClient, logger),
		Sessions: session.NewManager(tmdbClient, states, logger),
		Logger:   logger,
	}

	server := httptest.NewServer(api.NewRouter(app, api.RouterConfig{}))

	ts := &TestServer{Server: server, Upstream: up, App: app, DB: db}
	t.Cleanup(func() {
		server.Close()
		backend.Close()
		db.Close()
	})
	return ts
}

func (ts *TestServer) postJSON(t *testing.T, path, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(ts.Server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST %s: status %d: %s", path, resp.StatusCode, raw)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("POST %s: decoding: %v", path, err)
	}
	return out
}
