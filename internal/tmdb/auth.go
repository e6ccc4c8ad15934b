package tmdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// approvalBaseURL is where the user approves a request token in their
// browser. Approval happens out of band; the application only builds
// the address.
const approvalBaseURL = "https://www.themoviedb.org/authenticate/"

// maxRatedPages bounds rated-movie pagination so a misbehaving server
// cannot keep the walk alive forever.
const maxRatedPages = 500

type requestTokenResponse struct {
	Success      bool   `json:"success"`
	RequestToken string `json:"request_token"`
	ExpiresAt    string `json:"expires_at"`
}

type sessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type accountResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type ratedMoviesResponse struct {
	Page         int `json:"page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []struct {
		ID     int     `json:"id"`
		Rating float64 `json:"rating"`
	} `json:"results"`
}

// CreateRequestToken obtains a temporary token that the user must
// approve in their browser before it can be exchanged for a session.
func (c *Client) CreateRequestToken(ctx context.Context) (string, error) {
	var out requestTokenResponse
	if err := c.authGet(ctx, "/authentication/token/new", nil, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", errors.New("tmdb: failed to create request token")
	}
	return out.RequestToken, nil
}

// ApprovalURL builds the browser address where the user approves the
// request token.
func ApprovalURL(requestToken string) string {
	return approvalBaseURL + requestToken
}

// CreateSession exchanges an approved request token for a persistent
// session identifier.
func (c *Client) CreateSession(ctx context.Context, requestToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"request_token": requestToken})
	if err != nil {
		return "", fmt.Errorf("encoding request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/authentication/session/new?api_key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out sessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if !out.Success {
		return "", errors.New("tmdb: no session created")
	}
	return out.SessionID, nil
}

// GetAccountID fetches the numeric account identifier for a session.
// It is needed to address the per-account rated-movies endpoint.
func (c *Client) GetAccountID(ctx context.Context, sessionID string) (int, error) {
	params := url.Values{}
	params.Set("session_id", sessionID)

	var out accountResponse
	if err := c.authGet(ctx, "/account", params, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// FetchAllRatedMovieIDs walks the account's rated-movies pages to
// exhaustion and returns the movie identifiers as a set.
func (c *Client) FetchAllRatedMovieIDs(ctx context.Context, sessionID string, accountID int) (map[int]struct{}, error) {
	ids := make(map[int]struct{})

	page := 1
	totalPages := 1
	for {
		params := url.Values{}
		params.Set("session_id", sessionID)
		params.Set("page", strconv.Itoa(page))

		var out ratedMoviesResponse
		endpoint := fmt.Sprintf("/account/%d/rated/movies", accountID)
		if err := c.authGet(ctx, endpoint, params, &out); err != nil {
			return nil, err
		}
		for _, movie := range out.Results {
			ids[movie.ID] = struct{}{}
		}

		totalPages = out.TotalPages
		page++
		if page > totalPages || page > maxRatedPages {
			break
		}
	}

	return ids, nil
}

// authGet performs an uncached GET. Account and token state must never
// be served stale, so the response cache is bypassed entirely.
func (c *Client) authGet(ctx context.Context, endpoint string, params url.Values, out any) error {
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
	return nil
}
