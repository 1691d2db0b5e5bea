package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited means the collection API answered 429. It is fatal
	// for the whole process.
	ErrRateLimited = errors.New("collection API rate limit exceeded (HTTP 429)")

	// ErrNoData means a page produced nothing usable for this cycle.
	ErrNoData = errors.New("no data")
)

// Fetcher issues paginated ticket_classes requests for one event. The
// HTTP client and its connections are reused across every fetch.
type Fetcher struct {
	client   *http.Client
	endpoint string
	token    string
	limiter  *rate.Limiter
	debug    bool

	requests atomic.Int64
	halted   atomic.Bool
}

func NewFetcher(config *Config) *Fetcher {
	endpoint := fmt.Sprintf("%s/events/%s/ticket_classes/",
		strings.TrimRight(config.APIBaseURL, "/"), url.PathEscape(config.EventID))

	limit := rate.Inf
	if config.MaxRequestsPerSecond > 0 {
		limit = rate.Limit(config.MaxRequestsPerSecond)
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: config.HTTPTimeoutDuration(),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        config.MaxWorkers + 2,
				MaxIdleConnsPerHost: config.MaxWorkers + 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint: endpoint,
		token:    config.APIToken,
		limiter:  rate.NewLimiter(limit, 1),
		debug:    config.DebugMode,
	}
}

// Endpoint returns the collection URL without the page parameter.
func (f *Fetcher) Endpoint() string {
	return f.endpoint
}

// Requests returns how many requests this fetcher has issued.
func (f *Fetcher) Requests() int64 {
	return f.requests.Load()
}

// Halted reports whether a 429 has been seen.
func (f *Fetcher) Halted() bool {
	return f.halted.Load()
}

// Fetch retrieves one 1-based page. It returns ErrRateLimited on 429 and
// ErrNoData (wrapped) for every other failure. Once rate limited, the
// fetcher never issues another request.
func (f *Fetcher) Fetch(ctx context.Context, page int) (*Page, error) {
	if f.halted.Load() {
		return nil, ErrRateLimited
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrNoData, page, err)
	}

	// Another worker may have hit the limit while we waited.
	if f.halted.Load() {
		return nil, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, "GET", f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: failed to create request: %v", ErrNoData, page, err)
	}

	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	n := f.requests.Add(1)
	fmt.Printf(T("fetch_request")+"\n", n, page)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: request failed: %v", ErrNoData, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		f.halted.Store(true)
		return nil, ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: failed to read response: %v", ErrNoData, page, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.debugLog("page %d returned HTTP %d: %s", page, resp.StatusCode, truncate(string(body), 200))
		return nil, fmt.Errorf("%w: page %d: HTTP %d", ErrNoData, page, resp.StatusCode)
	}

	p, err := parsePage(page, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}

	f.debugLog("page %d: %d ticket classes, has_more=%v, page_count=%d",
		page, len(p.Tickets), p.HasMore, p.PageCount)
	return p, nil
}

func (f *Fetcher) debugLog(format string, args ...interface{}) {
	if f.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
