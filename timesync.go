package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// clockResyncAfter bounds how long a measured skew is trusted while the
// poller waits for the sale to open.
const clockResyncAfter = time.Hour

var errNoDateHeader = errors.New("response carries no Date header")

// ServerClock tracks how far the ticket hosts' clocks run ahead of ours,
// so a start_at gate opens on their time rather than the operator's.
type ServerClock struct {
	client *http.Client
	hosts  []string
	debug  bool

	mu       sync.RWMutex
	skew     time.Duration
	measured time.Time
}

func NewServerClock(debug bool, hosts ...string) *ServerClock {
	return &ServerClock{
		client: &http.Client{Timeout: 5 * time.Second},
		hosts:  hosts,
		debug:  debug,
	}
}

// Sync samples every host and keeps the median skew. Hosts that fail or
// omit a Date header are skipped; Sync fails only when none answered.
func (c *ServerClock) Sync(ctx context.Context) error {
	var samples []time.Duration
	for _, host := range c.hosts {
		skew, err := c.sample(ctx, host)
		if err != nil {
			c.debugLog("clock sample from %s failed: %v", host, err)
			continue
		}
		c.debugLog("clock skew against %s: %v", host, skew)
		samples = append(samples, skew)
	}

	if len(samples) == 0 {
		return fmt.Errorf("no clock sample from %d host(s)", len(c.hosts))
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	c.mu.Lock()
	c.skew = samples[len(samples)/2]
	c.measured = time.Now()
	c.mu.Unlock()
	return nil
}

// sample reads one host's Date header and places it at the midpoint of
// the round trip.
func (c *ServerClock) sample(ctx context.Context, host string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, host, nil)
	if err != nil {
		return 0, err
	}

	sent := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	rtt := time.Since(sent)

	header := resp.Header.Get("Date")
	if header == "" {
		return 0, errNoDateHeader
	}
	remote, err := http.ParseTime(header)
	if err != nil {
		return 0, fmt.Errorf("bad Date header %q: %w", header, err)
	}

	return remote.Sub(sent.Add(rtt / 2)), nil
}

// Now is local time shifted by the last measured skew.
func (c *ServerClock) Now() time.Time {
	return time.Now().Add(c.Skew())
}

// Skew is zero until the first successful Sync.
func (c *ServerClock) Skew() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skew
}

func (c *ServerClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.measured.IsZero()
}

// Stale reports whether Sync has never succeeded or ran too long ago.
func (c *ServerClock) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.measured.IsZero() || time.Since(c.measured) > clockResyncAfter
}

func (c *ServerClock) debugLog(format string, args ...interface{}) {
	if c.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}
