// Package omdb looks up movies in the OMDb database by IMDB id and
// extracts a normalized year/rating record. It is the authoritative
// source used to cross-check TMDB release years.
package omdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ld100/cinefilter/internal/cache"
	"github.com/ld100/cinefilter/internal/metrics"
)

const defaultBaseURL = "https://www.omdbapi.com"

// notAvailable is OMDb's sentinel for fields it has no data for.
const notAvailable = "N/A"

// StatusError is returned for any non-2xx response from OMDb.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("omdb %d: %s: %s", e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("omdb %d: %s", e.StatusCode, e.Status)
}

// NotFoundError is returned when OMDb answers 200 but its payload
// signals failure, typically "Movie not found!".
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return "omdb: " + msg
}

// Response is the raw OMDb payload for a single title.
type Response struct {
	Response   string `json:"Response"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	IMDBRating string `json:"imdbRating"`
	IMDBID     string `json:"imdbID"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Error      string `json:"Error"`
}

// ParsedResult is the normalized record extracted from a Response.
// Year and Rating are nil when OMDb has no usable value; RatingStr
// preserves the raw display string either way.
type ParsedResult struct {
	Year      *int
	Rating    *float64
	RatingStr string
	RawYear   string
	Director  string
	Actors    string
}

// Client fetches OMDb records, caching them by IMDB id and throttling
// outbound calls so sequential verification cannot hammer the service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit overrides the outbound request limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithCacheTTL overrides how long responses stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache.New(ttl)
	}
}

func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache.New(cache.DefaultTTL),
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		logger:     logger.With(slog.String("component", "omdb")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClearCache drops all cached OMDb responses.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// GetByIMDbID fetches a movie record by IMDB id. Successful lookups
// are cached by id alone; failures are never cached.
func (c *Client) GetByIMDbID(ctx context.Context, imdbID string) (*Response, error) {
	key := cache.Key("omdb", imdbID)
	if v, ok := c.cache.Get(key); ok {
		metrics.APICacheHitsTotal.WithLabelValues("omdb").Inc()
		resp := v.(Response)
		return &resp, nil
	}
	metrics.APICacheMissesTotal.WithLabelValues("omdb").Inc()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("i", imdbID)
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var payload Response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if payload.Response == "False" {
		return nil, &NotFoundError{Message: payload.Error}
	}

	c.cache.Set(key, payload)
	return &payload, nil
}

// Parse extracts year and rating from a raw record. It is total over
// arbitrary input: malformed years and ratings degrade to nil, never
// to an error. OMDb reports series years as en-dash separated ranges
// ("2020–2023"); the start year is taken.
func Parse(resp *Response) ParsedResult {
	out := ParsedResult{RatingStr: resp.IMDBRating}

	rawYear := strings.TrimSpace(strings.SplitN(resp.Year, "–", 2)[0])
	out.RawYear = rawYear
	if year, err := strconv.Atoi(rawYear); err == nil {
		out.Year = &year
	}

	if resp.IMDBRating != "" && resp.IMDBRating != notAvailable {
		if rating, err := strconv.ParseFloat(resp.IMDBRating, 64); err == nil {
			out.Rating = &rating
		}
	}

	if resp.Director != notAvailable {
		out.Director = resp.Director
	}
	if resp.Actors != notAvailable {
		out.Actors = resp.Actors
	}

	return out
}
