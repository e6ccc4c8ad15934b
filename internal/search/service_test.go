package search

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ld100/cinefilter/internal/models"
	"github.com/ld100/cinefilter/internal/omdb"
	"github.com/ld100/cinefilter/internal/tmdb"
)

// fakeCatalog serves deterministic discovery pages and per-movie
// details. Movie ids encode their native page as page*1000+index.
type fakeCatalog struct {
	totalPages   int
	totalResults int
	pageSize     int

	// imdbFor overrides the IMDB id returned for a movie; missing
	// entries get a generated id, an explicit "" gets none.
	imdbFor map[int]string

	requestedPages []int
	blockDetails   chan struct{}
	blockDiscover  chan struct{}
}

func (f *fakeCatalog) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/discover/movie", func(w http.ResponseWriter, r *http.Request) {
		if f.blockDiscover != nil {
			<-f.blockDiscover
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		f.requestedPages = append(f.requestedPages, page)

		results := make([]models.Movie, 0, f.pageSize)
		for i := 0; i < f.pageSize; i++ {
			id := page*1000 + i
			results = append(results, models.Movie{
				ID:          id,
				Title:       fmt.Sprintf("Movie %d", id),
				ReleaseDate: "2022-06-15",
				VoteAverage: 7.5,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"page":          page,
			"total_pages":   f.totalPages,
			"total_results": f.totalResults,
			"results":       results,
		})
	})
	mux.HandleFunc("/movie/", func(w http.ResponseWriter, r *http.Request) {
		if f.blockDetails != nil {
			<-f.blockDetails
		}
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/movie/"))
		imdbID := fmt.Sprintf("tt%07d", id)
		if override, ok := f.imdbFor[id]; ok {
			imdbID = override
		}
		fmt.Fprintf(w, `{"id":%d,"external_ids":{"imdb_id":"%s"},"watch/providers":{"results":{"US":{"flatrate":[{"provider_id":8,"provider_name":"Netflix"}]}}}}`,
			id, imdbID)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// fakeOMDb answers every id with the given year unless overridden.
type fakeOMDb struct {
	defaultYear string
	yearFor     map[string]string
	missing     map[string]bool
}

func (f *fakeOMDb) server(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("i")
		if f.missing[id] {
			w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
			return
		}
		year := f.defaultYear
		if override, ok := f.yearFor[id]; ok {
			year = override
		}
		fmt.Fprintf(w, `{"Response":"True","Title":"Some Movie","Year":"%s","imdbRating":"7.9","imdbID":"%s"}`, year, id)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, catalog *fakeCatalog, db *fakeOMDb) *Service {
	t.Helper()
	tmdbClient := tmdb.NewClient("test-key", nil, tmdb.WithBaseURL(catalog.server(t).URL))
	omdbClient := omdb.NewClient("test-key", nil,
		omdb.WithBaseURL(db.server(t).URL),
		omdb.WithRateLimit(rate.Inf, 1))
	return NewService(tmdbClient, omdbClient, nil)
}

// drain reads updates until the pipeline closes the channel.
func drain(t *testing.T, sess *Session) []Update {
	t.Helper()
	var updates []Update
	timeout := time.After(10 * time.Second)
	for {
		select {
		case u, ok := <-sess.Updates:
			if !ok {
				return updates
			}
			updates = append(updates, u)
		case <-timeout:
			t.Fatalf("pipeline did not finish; got %d updates so far", len(updates))
		}
	}
}

func searchFilters(pageSize int) models.Filters {
	return models.Filters{
		YearFrom:    2020,
		YearTo:      2024,
		MinRating:   7.0,
		MinVotes:    100,
		WatchRegion: "US",
		PageSize:    pageSize,
	}
}

func TestSearchVerifiesEveryMovie(t *testing.T) {
	catalog := &fakeCatalog{totalPages: 1, totalResults: 3, pageSize: 3}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	sess := svc.Search(searchFilters(20), 1)
	updates := drain(t, sess)

	if updates[0].Type != "results" {
		t.Fatalf("first update = %q, want results", updates[0].Type)
	}
	first := updates[0].Data.(Snapshot)
	if len(first.Movies) != 3 {
		t.Fatalf("results carried %d movies, want 3", len(first.Movies))
	}
	for _, m := range first.Movies {
		if first.Verification[m.ID] != models.StatusChecking {
			t.Errorf("movie %d should start as checking", m.ID)
		}
	}
	if first.Stats.Pending != 3 {
		t.Errorf("initial pending = %d, want 3", first.Stats.Pending)
	}

	var movieUpdates []MovieUpdate
	for _, u := range updates[1:] {
		if u.Type == "movie" {
			movieUpdates = append(movieUpdates, u.Data.(MovieUpdate))
		}
	}
	if len(movieUpdates) != 3 {
		t.Fatalf("got %d movie updates, want 3", len(movieUpdates))
	}
	for i, mu := range movieUpdates {
		if mu.Movie.Status != models.StatusVerified {
			t.Errorf("movie %d status = %q, want verified", mu.Movie.ID, mu.Movie.Status)
		}
		if mu.Stats.Verified != i+1 {
			t.Errorf("update %d verified = %d, want %d", i, mu.Stats.Verified, i+1)
		}
		if mu.Stats.Pending != 3-(i+1) {
			t.Errorf("update %d pending = %d, want %d", i, mu.Stats.Pending, 3-(i+1))
		}
		if len(mu.Movie.Providers) != 1 || mu.Movie.Providers[0].Name != "Netflix" {
			t.Errorf("movie %d providers = %+v", mu.Movie.ID, mu.Movie.Providers)
		}
	}

	last := updates[len(updates)-1]
	if last.Type != "done" {
		t.Fatalf("last update = %q, want done", last.Type)
	}
	stats := last.Data.(models.SearchStats)
	if stats.Verified != 3 || stats.Mismatched != 0 || stats.Pending != 0 {
		t.Errorf("final stats = %+v", stats)
	}

	snap := sess.Snapshot()
	if snap.Loading {
		t.Error("loading should be false after completion")
	}
}

func TestSearchMismatchAndErrorOutcomes(t *testing.T) {
	catalog := &fakeCatalog{
		totalPages:   1,
		totalResults: 4,
		pageSize:     4,
		imdbFor:      map[int]string{1002: ""},
	}
	db := &fakeOMDb{
		defaultYear: "2022",
		yearFor:     map[string]string{"tt0001001": "1977"},
		missing:     map[string]bool{"tt0001003": true},
	}
	svc := newTestService(t, catalog, db)

	sess := svc.Search(searchFilters(20), 1)
	updates := drain(t, sess)

	outcomes := map[int]models.VerifyStatus{}
	for _, u := range updates {
		if u.Type == "movie" {
			mu := u.Data.(MovieUpdate)
			outcomes[mu.Movie.ID] = mu.Movie.Status
		}
	}

	want := map[int]models.VerifyStatus{
		1000: models.StatusVerified, // year matches
		1001: models.StatusMismatch, // authoritative year 1977
		1002: models.StatusVerified, // no IMDB id, nothing contradicts
		1003: models.StatusError,    // OMDb has no record
	}
	for id, status := range want {
		if outcomes[id] != status {
			t.Errorf("movie %d outcome = %q, want %q", id, outcomes[id], status)
		}
	}

	last := updates[len(updates)-1]
	if last.Type != "done" {
		t.Fatalf("last update = %q, want done", last.Type)
	}
	stats := last.Data.(models.SearchStats)
	// Error outcomes stay in pending: total 4 minus 2 verified minus 1
	// mismatched leaves 1.
	if stats.Verified != 2 || stats.Mismatched != 1 || stats.Pending != 1 {
		t.Errorf("final stats = %+v", stats)
	}
}

func TestSearchAggregatesNativePages(t *testing.T) {
	catalog := &fakeCatalog{totalPages: 10, totalResults: 200, pageSize: 20}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	// Display page 2 at size 50 needs native pages 4 through 6.
	sess := svc.Search(searchFilters(50), 2)
	updates := drain(t, sess)

	wantPages := []int{4, 5, 6}
	if len(catalog.requestedPages) != len(wantPages) {
		t.Fatalf("requested pages %v, want %v", catalog.requestedPages, wantPages)
	}
	for i, p := range wantPages {
		if catalog.requestedPages[i] != p {
			t.Errorf("request %d hit page %d, want %d", i, catalog.requestedPages[i], p)
		}
	}

	first := updates[0].Data.(Snapshot)
	if len(first.Movies) != 50 {
		t.Errorf("page carried %d movies, want trimmed 50", len(first.Movies))
	}
	if first.Movies[0].ID != 4000 {
		t.Errorf("first movie = %d, want 4000", first.Movies[0].ID)
	}
	// ceil(min(10*20, 200) / 50) = 4 display pages.
	if first.TotalPages != 4 {
		t.Errorf("TotalPages = %d, want 4", first.TotalPages)
	}
	if first.TotalResults != 200 {
		t.Errorf("TotalResults = %d, want 200", first.TotalResults)
	}
}

func TestSearchStopsAtLastNativePage(t *testing.T) {
	catalog := &fakeCatalog{totalPages: 2, totalResults: 40, pageSize: 20}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	// Size 100 would want five native pages but only two exist.
	sess := svc.Search(searchFilters(100), 1)
	updates := drain(t, sess)

	if len(catalog.requestedPages) != 2 {
		t.Errorf("requested pages %v, want exactly [1 2]", catalog.requestedPages)
	}
	first := updates[0].Data.(Snapshot)
	if len(first.Movies) != 40 {
		t.Errorf("page carried %d movies, want all 40", len(first.Movies))
	}
	// ceil(min(2*20, 40) / 100) = 1 display page.
	if first.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", first.TotalPages)
	}
}

func TestSearchDiscoveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	tmdbClient := tmdb.NewClient("test-key", nil, tmdb.WithBaseURL(server.URL))
	omdbClient := omdb.NewClient("test-key", nil, omdb.WithBaseURL(server.URL))
	svc := NewService(tmdbClient, omdbClient, nil)

	sess := svc.Search(searchFilters(20), 1)
	updates := drain(t, sess)

	if len(updates) != 1 || updates[0].Type != "error" {
		t.Fatalf("updates = %+v, want a single error", updates)
	}
	snap := updates[0].Data.(Snapshot)
	if snap.Error == "" {
		t.Error("expected an error message")
	}
	if snap.Loading {
		t.Error("loading should be false after a failed search")
	}
}

func TestSearchCancellation(t *testing.T) {
	catalog := &fakeCatalog{
		totalPages:   1,
		totalResults: 3,
		pageSize:     3,
		blockDetails: make(chan struct{}),
	}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	sess := svc.Search(searchFilters(20), 1)

	// Wait for the initial page, then cancel while the first
	// verification round-trip is blocked.
	select {
	case u := <-sess.Updates:
		if u.Type != "results" {
			t.Fatalf("first update = %q, want results", u.Type)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no results update")
	}

	sess.Cancel()
	close(catalog.blockDetails)

	updates := drain(t, sess)
	for _, u := range updates {
		if u.Type == "done" || u.Type == "error" {
			t.Errorf("cancelled search must not publish %q", u.Type)
		}
	}

	// The snapshot keeps whatever was published before cancellation;
	// loading is left for a superseding search to overwrite.
	snap := sess.Snapshot()
	if !snap.Loading {
		t.Error("cancelled search should leave loading untouched")
	}
	if len(snap.Movies) != 3 {
		t.Errorf("snapshot carried %d movies, want the published 3", len(snap.Movies))
	}
}

func TestSearchCancelledBeforeAggregation(t *testing.T) {
	catalog := &fakeCatalog{
		totalPages:    1,
		totalResults:  3,
		pageSize:      3,
		blockDiscover: make(chan struct{}),
	}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	sess := svc.Search(searchFilters(20), 1)
	sess.Cancel()
	close(catalog.blockDiscover)

	if updates := drain(t, sess); len(updates) != 0 {
		t.Errorf("search cancelled during discovery published %d updates, want none", len(updates))
	}

	snap := sess.Snapshot()
	if len(snap.Movies) != 0 {
		t.Errorf("snapshot carried %d movies, want none", len(snap.Movies))
	}
	if snap.Error != "" {
		t.Errorf("snapshot error = %q, want empty", snap.Error)
	}
}

func TestSearchSupersedesPrevious(t *testing.T) {
	catalog := &fakeCatalog{
		totalPages:   1,
		totalResults: 2,
		pageSize:     2,
		blockDetails: make(chan struct{}),
	}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	first := svc.Search(searchFilters(20), 1)
	select {
	case <-first.Updates:
	case <-time.After(10 * time.Second):
		t.Fatal("no results update on first search")
	}

	second := svc.Search(searchFilters(20), 2)
	close(catalog.blockDetails)

	firstUpdates := drain(t, first)
	for _, u := range firstUpdates {
		if u.Type == "done" {
			t.Error("superseded search must not publish done")
		}
	}
	drain(t, second)

	if _, ok := svc.Session(first.ID); !ok {
		t.Error("superseded session should stay queryable")
	}
	if _, ok := svc.Session(second.ID); !ok {
		t.Error("active session should be queryable")
	}
	if first.ID == second.ID {
		t.Error("sessions must get distinct ids")
	}
}

func TestCancelSessionUnknownID(t *testing.T) {
	catalog := &fakeCatalog{totalPages: 1, totalResults: 0, pageSize: 0}
	db := &fakeOMDb{defaultYear: "2022"}
	svc := newTestService(t, catalog, db)

	if svc.CancelSession("no-such-id") {
		t.Error("cancelling an unknown session should report false")
	}
	// Cancel with nothing in flight must not panic.
	svc.Cancel()
}
