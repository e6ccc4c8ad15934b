package tmdb

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

	"github.com/ld100/cinefilter/internal/cache"
	"github.com/ld100/cinefilter/internal/metrics"
	"github.com/ld100/cinefilter/internal/models"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	imageBaseURL   = "https://image.tmdb.org/t/p"

	// nativePageSize is fixed by the TMDB API and independent of the
	// user-facing page size.
	nativePageSize = 20

	// maxNativePages is TMDB's hard pagination ceiling.
	maxNativePages = 500
)

// StatusError is returned for any non-2xx response from TMDB.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("tmdb %d: %s: %s", e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("tmdb %d: %s", e.StatusCode, e.Status)
}

// Client talks to the TMDB API. Discovery and detail responses are
// cached in memory; see the cache package for eviction semantics.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
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
		logger:     logger.With(slog.String("component", "tmdb")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClearCache drops all cached TMDB responses.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// DiscoverResponse is one native page of discovery results.
type DiscoverResponse struct {
	Page         int            `json:"page"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
	Results      []models.Movie `json:"results"`
}

// NativePageSize returns the fixed TMDB page size.
func NativePageSize() int { return nativePageSize }

// MaxNativePages returns TMDB's pagination ceiling.
func MaxNativePages() int { return maxNativePages }

// Discover runs a filtered discovery query for one native page.
// Exclusion and provider parameters are omitted entirely when their
// underlying set is empty; the watch region is only sent alongside a
// provider filter.
func (c *Client) Discover(ctx context.Context, filters models.Filters, page int) (*DiscoverResponse, error) {
	params := url.Values{}
	params.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", filters.YearFrom))
	params.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", filters.YearTo))
	params.Set("vote_average.gte", strconv.FormatFloat(filters.MinRating, 'f', -1, 64))
	params.Set("vote_count.gte", strconv.Itoa(filters.MinVotes))
	params.Set("sort_by", "vote_average.desc")
	params.Set("page", strconv.Itoa(page))
	params.Set("language", "en-US")

	if len(filters.ExcludedGenres) > 0 {
		params.Set("without_genres", joinInts(filters.ExcludedGenres, ","))
	}
	if len(filters.ExcludedLanguages) > 0 {
		params.Set("without_original_language", strings.Join(filters.ExcludedLanguages, ","))
	}
	if len(filters.ExcludedCountries) > 0 {
		params.Set("without_origin_country", strings.Join(filters.ExcludedCountries, ","))
	}
	if len(filters.Providers) > 0 {
		params.Set("with_watch_providers", joinInts(filters.Providers, "|"))
		params.Set("watch_region", filters.WatchRegion)
	}

	var out DiscoverResponse
	if err := c.get(ctx, "/discover/movie", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExternalIDs carries cross-reference keys for a movie.
type ExternalIDs struct {
	IMDBID string `json:"imdb_id"`
}

// RegionOffers lists the provider offers for one region.
type RegionOffers struct {
	Flatrate []models.Provider `json:"flatrate"`
}

// WatchProviders maps region codes to offers.
type WatchProviders struct {
	Results map[string]RegionOffers `json:"results"`
}

// MovieDetails is the extended per-movie record, fetched with the
// external-ids and watch-provider sub-resources appended in one call.
type MovieDetails struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	ExternalIDs    ExternalIDs    `json:"external_ids"`
	WatchProviders WatchProviders `json:"watch/providers"`
}

// FlatrateProviders returns the streaming providers for the given
// region, or nil when the region has no offers. Never panics on
// missing nested fields.
func (d *MovieDetails) FlatrateProviders(region string) []models.Provider {
	if d == nil {
		return nil
	}
	offers, ok := d.WatchProviders.Results[region]
	if !ok {
		return nil
	}
	return offers.Flatrate
}

// GetDetails fetches the extended record for a single movie.
func (c *Client) GetDetails(ctx context.Context, movieID int) (*MovieDetails, error) {
	params := url.Values{}
	params.Set("append_to_response", "external_ids,watch/providers")

	var out MovieDetails
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", movieID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImageURL builds a poster URL for the given path and size (for
// example "w500"). An empty path yields an empty URL.
func ImageURL(path, size string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s%s", imageBaseURL, size, path)
}

// get performs a cached GET against the API. The cache key is derived
// from the endpoint and sorted query parameters, excluding the API
// key; raw response bodies are stored so all endpoints share one
// store.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	key := cache.ParamsKey("tmdb", endpoint, params)
	if raw, ok := c.cache.Get(key); ok {
		metrics.APICacheHitsTotal.WithLabelValues("tmdb").Inc()
		return json.Unmarshal(raw.([]byte), out)
	}
	metrics.APICacheMissesTotal.WithLabelValues("tmdb").Inc()

	query := url.Values{}
	for name, vals := range params {
		query[name] = vals
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	c.cache.Set(key, body)
	return nil
}

func joinInts(ids []int, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, sep)
}
