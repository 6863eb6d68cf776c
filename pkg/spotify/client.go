// Package spotify provides a client for the Spotify Web API covering the
// artist-search surface used by catalog enrichment. Authentication uses the
// client-credentials flow; tokens are cached and refreshed on expiry.
package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/localsoundcheck/soundcheck-cli/internal/resilience"
)

// Client defines the catalog operations enrichment uses.
type Client interface {
	// SearchArtists returns up to limit artists matching a name query.
	SearchArtists(ctx context.Context, name string, limit int) ([]Artist, error)
}

// Artist is one catalog entry from an artist search.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Followers  int64    `json:"followers"`
	Genres     []string `json:"genres"`
}

// Option configures the Spotify client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithTokenURL sets a custom token endpoint (for testing).
func WithTokenURL(u string) Option {
	return func(c *httpClient) {
		c.tokenURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	http         *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new Spotify Web API client.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.spotify.com/v1",
		tokenURL:     "https://accounts.spotify.com/api/token",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached access token, fetching a fresh one when the cached
// token is absent or within a minute of expiry.
func (c *httpClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "spotify: create token request")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "spotify: token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "spotify: read token response")
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(
			eris.Errorf("spotify: token status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("spotify: token status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "spotify: parse token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("spotify: empty access token")
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

type searchResponse struct {
	Artists struct {
		Items []struct {
			ID         string   `json:"id"`
			Name       string   `json:"name"`
			Popularity int      `json:"popularity"`
			Genres     []string `json:"genres"`
			Followers  struct {
				Total int64 `json:"total"`
			} `json:"followers"`
		} `json:"items"`
	} `json:"artists"`
}

func (c *httpClient) SearchArtists(ctx context.Context, name string, limit int) ([]Artist, error) {
	if limit <= 0 {
		limit = 5
	}

	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("type", "artist")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "spotify: create search request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "spotify: search request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "spotify: read search response")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked server side. Drop the cache so the next call
		// re-authenticates.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, resilience.NewTransientError(
			eris.Errorf("spotify: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("spotify: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("spotify: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "spotify: parse search response")
	}

	artists := make([]Artist, 0, len(parsed.Artists.Items))
	for _, item := range parsed.Artists.Items {
		artists = append(artists, Artist{
			ID:         item.ID,
			Name:       item.Name,
			Popularity: item.Popularity,
			Followers:  item.Followers.Total,
			Genres:     item.Genres,
		})
	}
	return artists, nil
}
