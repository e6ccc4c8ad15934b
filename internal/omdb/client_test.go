package omdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetByIMDbID(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Query().Get("i"); got != "tt0133093" {
			t.Errorf("i = %q", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		w.Write([]byte(`{"Response":"True","Title":"The Matrix","Year":"1999","imdbRating":"8.7","imdbID":"tt0133093","Director":"Lana Wachowski, Lilly Wachowski","Actors":"Keanu Reeves"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", nil, WithBaseURL(server.URL))

	resp, err := client.GetByIMDbID(context.Background(), "tt0133093")
	if err != nil {
		t.Fatalf("GetByIMDbID: %v", err)
	}
	if resp.Title != "The Matrix" || resp.Year != "1999" {
		t.Errorf("unexpected response: %+v", resp)
	}

	// Second lookup for the same id must come from the cache.
	if _, err := client.GetByIMDbID(context.Background(), "tt0133093"); err != nil {
		t.Fatalf("second GetByIMDbID: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 upstream request, got %d", requests)
	}
}

func TestGetByIMDbIDNotFound(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", nil, WithBaseURL(server.URL))

	_, err := client.GetByIMDbID(context.Background(), "tt0000000")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
	if notFound.Message != "Movie not found!" {
		t.Errorf("Message = %q", notFound.Message)
	}

	// Failures are never cached, so a retry hits the server again.
	client.GetByIMDbID(context.Background(), "tt0000000")
	if requests != 2 {
		t.Errorf("expected 2 upstream requests, got %d", requests)
	}
}

func TestGetByIMDbIDStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test-key", nil, WithBaseURL(server.URL))
	_, err := client.GetByIMDbID(context.Background(), "tt0133093")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if statusErr.Body != "boom" {
		t.Errorf("Body = %q, want %q", statusErr.Body, "boom")
	}
}

func TestGetByIMDbIDCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"True","Year":"1999"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", nil, WithBaseURL(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GetByIMDbID(ctx, "tt0133093"); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestParse(t *testing.T) {
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	tests := []struct {
		name       string
		resp       Response
		wantYear   *int
		wantRating *float64
	}{
		{
			name:       "plain year and rating",
			resp:       Response{Year: "1999", IMDBRating: "8.7"},
			wantYear:   intPtr(1999),
			wantRating: floatPtr(8.7),
		},
		{
			name:       "year range takes the start",
			resp:       Response{Year: "2020–2023", IMDBRating: "7.5"},
			wantYear:   intPtr(2020),
			wantRating: floatPtr(7.5),
		},
		{
			name:     "year not available",
			resp:     Response{Year: "N/A", IMDBRating: "6.0"},
			wantYear: nil, wantRating: floatPtr(6.0),
		},
		{
			name:     "rating not available",
			resp:     Response{Year: "2001", IMDBRating: "N/A"},
			wantYear: intPtr(2001), wantRating: nil,
		},
		{
			name:     "empty rating",
			resp:     Response{Year: "2001"},
			wantYear: intPtr(2001), wantRating: nil,
		},
		{
			name:     "garbage year",
			resp:     Response{Year: "soon", IMDBRating: "not a number"},
			wantYear: nil, wantRating: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(&tt.resp)

			if (got.Year == nil) != (tt.wantYear == nil) {
				t.Fatalf("Year = %v, want %v", got.Year, tt.wantYear)
			}
			if got.Year != nil && *got.Year != *tt.wantYear {
				t.Errorf("Year = %d, want %d", *got.Year, *tt.wantYear)
			}
			if (got.Rating == nil) != (tt.wantRating == nil) {
				t.Fatalf("Rating = %v, want %v", got.Rating, tt.wantRating)
			}
			if got.Rating != nil && *got.Rating != *tt.wantRating {
				t.Errorf("Rating = %v, want %v", *got.Rating, *tt.wantRating)
			}
			if got.RatingStr != tt.resp.IMDBRating {
				t.Errorf("RatingStr = %q, want the raw value %q", got.RatingStr, tt.resp.IMDBRating)
			}
		})
	}
}

func TestParseCreditSentinels(t *testing.T) {
	got := Parse(&Response{Year: "1999", Director: "N/A", Actors: "N/A"})
	if got.Director != "" || got.Actors != "" {
		t.Errorf("sentinel credits should clear: director=%q actors=%q", got.Director, got.Actors)
	}

	got = Parse(&Response{Year: "1999", Director: "Denis Villeneuve", Actors: "Timothée Chalamet"})
	if got.Director != "Denis Villeneuve" || got.Actors != "Timothée Chalamet" {
		t.Errorf("real credits should pass through: %+v", got)
	}
}
