package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"leadscout/internal/metrics"
)

// HTTPSource talks to a JSON content API.
//
// Expected endpoints:
//
//	GET {base}/search?q=...&cursor=...   -> SearchPage
//	GET {base}/timeline/{handle}?limit=N -> {"items":[...]}
type HTTPSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSource creates a content source for a JSON API.
func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("content base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid content base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// SearchByKeyword returns one page of results for a keyword.
func (s *HTTPSource) SearchByKeyword(ctx context.Context, keyword, cursor string) (*SearchPage, error) {
	q := url.Values{}
	q.Set("q", keyword)
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page SearchPage
	if err := s.getJSON(ctx, "/search?"+q.Encode(), "search", &page); err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	return &page, nil
}

// FetchTimeline returns up to maxItems recent posts for a handle.
func (s *HTTPSource) FetchTimeline(ctx context.Context, handle string, maxItems int) ([]TimelineItem, error) {
	path := "/timeline/" + url.PathEscape(handle) + "?limit=" + strconv.Itoa(maxItems)

	var resp struct {
		Items []TimelineItem `json:"items"`
	}
	if err := s.getJSON(ctx, path, "timeline", &resp); err != nil {
		return nil, fmt.Errorf("timeline %q: %w", handle, err)
	}
	return resp.Items, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path, endpoint string, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("content api call: %w", err)
	}
	defer resp.Body.Close()

	metrics.ContentFetchLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
