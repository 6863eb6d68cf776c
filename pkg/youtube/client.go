// Package youtube provides a client for the YouTube Data API v3 plus the
// keyless oEmbed endpoint. The client performs single attempts only;
// retry and budgeting live with the caller, which wraps each call in a
// governed execution.
package youtube

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/localsoundcheck/soundcheck-cli/internal/resilience"
)

// Client defines the video platform operations the pipeline uses.
type Client interface {
	// Search returns up to maxResults video candidates for a query.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	// Video fetches metadata and statistics for one video.
	Video(ctx context.Context, videoID string) (*VideoMeta, error)
	// Channel fetches metadata and statistics for one channel.
	Channel(ctx context.Context, channelID string) (*ChannelMeta, error)
	// Oembed fetches title and uploader via the keyless oEmbed endpoint.
	Oembed(ctx context.Context, videoID string) (*OembedInfo, error)
}

// SearchResult is one candidate from a search call.
type SearchResult struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
}

// VideoMeta is the metadata the verifier needs for one video.
type VideoMeta struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	PublishedAt time.Time `json:"published_at"`
	ViewCount   int64     `json:"view_count"`
}

// ChannelMeta is the channel-level metadata used as a trust modifier.
type ChannelMeta struct {
	ChannelID   string `json:"channel_id"`
	Name        string `json:"name"`
	Subscribers int64  `json:"subscribers"`
	VideoCount  int64  `json:"video_count"`
}

// OembedInfo is the keyless lookup result used by the accuracy audit.
type OembedInfo struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// ErrNotFound is returned when a video or channel id resolves to nothing.
var ErrNotFound = eris.New("youtube: not found")

// Option configures the YouTube client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithOembedURL sets a custom oEmbed endpoint (for testing).
func WithOembedURL(u string) Option {
	return func(c *httpClient) {
		c.oembedURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	oembedURL string
	http      *http.Client
}

// NewClient creates a new YouTube Data API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://www.googleapis.com/youtube/v3",
		oembedURL: "https://www.youtube.com/oembed",
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

// get performs one request. Transient statuses come back wrapped as
// *resilience.TransientError so the governed retry layer can tell them
// from hard failures.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "youtube: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "youtube: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "youtube: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("youtube: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("youtube: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *httpClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, c.baseURL+"/search?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "youtube: parse search response")
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.ID.VideoID == "" {
			continue
		}
		results = append(results, SearchResult{
			VideoID:      item.ID.VideoID,
			Title:        item.Snippet.Title,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
		})
	}
	return results, nil
}

type videoResponse struct {
	Items []struct {
		Snippet struct {
			Title        string    `json:"title"`
			ChannelID    string    `json:"channelId"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *httpClient) Video(ctx context.Context, videoID string) (*VideoMeta, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", videoID)
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, c.baseURL+"/videos?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var parsed videoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "youtube: parse video response")
	}
	if len(parsed.Items) == 0 {
		return nil, ErrNotFound
	}

	item := parsed.Items[0]
	views, _ := strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
	return &VideoMeta{
		VideoID:     videoID,
		Title:       item.Snippet.Title,
		ChannelID:   item.Snippet.ChannelID,
		ChannelName: item.Snippet.ChannelTitle,
		PublishedAt: item.Snippet.PublishedAt,
		ViewCount:   views,
	}, nil
}

type channelResponse struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *httpClient) Channel(ctx context.Context, channelID string) (*ChannelMeta, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", channelID)
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, c.baseURL+"/channels?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var parsed channelResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "youtube: parse channel response")
	}
	if len(parsed.Items) == 0 {
		return nil, ErrNotFound
	}

	item := parsed.Items[0]
	subs, _ := strconv.ParseInt(item.Statistics.SubscriberCount, 10, 64)
	vids, _ := strconv.ParseInt(item.Statistics.VideoCount, 10, 64)
	return &ChannelMeta{
		ChannelID:   channelID,
		Name:        item.Snippet.Title,
		Subscribers: subs,
		VideoCount:  vids,
	}, nil
}

func (c *httpClient) Oembed(ctx context.Context, videoID string) (*OembedInfo, error) {
	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")

	body, err := c.get(ctx, c.oembedURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var info OembedInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, eris.Wrap(err, "youtube: parse oembed response")
	}
	return &info, nil
}
