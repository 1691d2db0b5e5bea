package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedCollector returns one canned collection per call, repeating the
// last entry once the script runs out.
type scriptedCollector struct {
	script []func() (*Collection, error)
	calls  int
}

func (s *scriptedCollector) Collect(ctx context.Context) (*Collection, error) {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return s.script[i]()
}

func soldOut() (*Collection, error) {
	return &Collection{
		Tickets: []TicketClass{{ID: "1", Status: StatusSoldOut}},
		Pages:   []*Page{{Number: 1, Raw: []byte(`{}`)}},
	}, nil
}

func available() (*Collection, error) {
	return &Collection{
		Tickets: []TicketClass{{ID: "1", Status: StatusSoldOut}, {ID: "2", Name: "GA", Status: StatusAvailable}},
		Pages:   []*Page{{Number: 1, Raw: []byte(`{}`)}},
	}, nil
}

type fakeResponses struct {
	saved []int
	err   error
}

func (f *fakeResponses) SaveResponses(pages []*Page, totalTickets int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, totalTickets)
	return fmt.Sprintf("response_%d.json", len(f.saved)), nil
}

func newTestPoller(t *testing.T, config *Config, collector Collector, recorder ResponseRecorder) (*Poller, *[]time.Duration) {
	t.Helper()
	p, err := NewPoller(config, collector, recorder)
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return p, &sleeps
}

func TestPollerStopsWhenAvailable(t *testing.T) {
	config := DefaultConfig()
	config.PollInterval = 2.5
	collector := &scriptedCollector{script: []func() (*Collection, error){soldOut, soldOut, available}}

	p, sleeps := newTestPoller(t, config, collector, nil)
	outcome, cycle, err := p.Run(context.Background())

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome != OutcomeAvailable {
		t.Fatalf("Expected OutcomeAvailable, got %v", outcome)
	}
	if cycle.Attempt != 3 || p.Attempts() != 3 {
		t.Errorf("Expected availability on attempt 3, got %d", cycle.Attempt)
	}
	if len(cycle.Verdict.Matched) != 1 || cycle.Verdict.Matched[0].Name != "GA" {
		t.Errorf("Unexpected matches %+v", cycle.Verdict.Matched)
	}
	if len(*sleeps) != 2 {
		t.Errorf("Expected 2 sleeps between 3 cycles, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 2500*time.Millisecond {
			t.Errorf("Expected 2.5s sleep, got %v", d)
		}
	}
	if p.State() != StateStopped {
		t.Error("Expected poller to be stopped")
	}
}

func TestPollerNoDataCountsAsNotAvailable(t *testing.T) {
	config := DefaultConfig()
	noData := func() (*Collection, error) { return &Collection{}, fmt.Errorf("%w: page 1: HTTP 503", ErrNoData) }
	collector := &scriptedCollector{script: []func() (*Collection, error){noData, noData, available}}

	p, _ := newTestPoller(t, config, collector, nil)
	outcome, _, err := p.Run(context.Background())

	if err != nil || outcome != OutcomeAvailable {
		t.Fatalf("Expected to keep polling through no-data cycles, got %v %v", outcome, err)
	}
	if collector.calls != 3 {
		t.Errorf("Expected 3 cycles, got %d", collector.calls)
	}
}

func TestPollerRateLimitEndsRun(t *testing.T) {
	config := DefaultConfig()
	limited := func() (*Collection, error) { return nil, ErrRateLimited }
	collector := &scriptedCollector{script: []func() (*Collection, error){soldOut, limited, soldOut}}

	p, sleeps := newTestPoller(t, config, collector, nil)
	outcome, _, err := p.Run(context.Background())

	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if outcome == OutcomeAvailable {
		t.Error("Expected no availability outcome")
	}
	if collector.calls != 2 {
		t.Errorf("Expected no cycle after the rate limit, got %d cycles", collector.calls)
	}
	if len(*sleeps) != 1 {
		t.Errorf("Expected 1 sleep, got %d", len(*sleeps))
	}
}

// latchedCollector reports a rate limit latched alongside a clean result.
type latchedCollector struct {
	scriptedCollector
}

func (l *latchedCollector) Halted() bool { return l.calls > 0 }

func TestPollerLatchedRateLimitOverridesAvailability(t *testing.T) {
	config := DefaultConfig()
	collector := &latchedCollector{scriptedCollector{script: []func() (*Collection, error){available}}}

	p, _ := newTestPoller(t, config, collector, nil)
	outcome, _, err := p.Run(context.Background())

	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if outcome == OutcomeAvailable {
		t.Error("Expected a latched rate limit to suppress the availability outcome")
	}
}

func TestPollerCancelledDuringSleep(t *testing.T) {
	config := DefaultConfig()
	collector := &scriptedCollector{script: []func() (*Collection, error){soldOut}}

	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewPoller(config, collector, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	outcome, _, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Expected clean cancellation, got %v", err)
	}
	if outcome != OutcomeCancelled {
		t.Errorf("Expected OutcomeCancelled, got %v", outcome)
	}
	if collector.calls != 1 {
		t.Errorf("Expected 1 cycle, got %d", collector.calls)
	}
}

func TestPollerCancelledBeforeFirstCycle(t *testing.T) {
	collector := &scriptedCollector{script: []func() (*Collection, error){available}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newTestPoller(t, DefaultConfig(), collector, nil)
	outcome, _, err := p.Run(ctx)
	if err != nil || outcome != OutcomeCancelled {
		t.Errorf("Expected cancelled outcome, got %v %v", outcome, err)
	}
	if collector.calls != 0 {
		t.Errorf("Expected no cycles, got %d", collector.calls)
	}
}

func TestPollerSavesResponses(t *testing.T) {
	testCases := []struct {
		name   string
		enable bool
		want   int
	}{
		{"enabled", true, 2},
		{"disabled", false, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			config.SaveJSONResponse = tc.enable
			recorder := &fakeResponses{}
			collector := &scriptedCollector{script: []func() (*Collection, error){soldOut, available}}

			p, _ := newTestPoller(t, config, collector, recorder)
			if _, _, err := p.Run(context.Background()); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(recorder.saved) != tc.want {
				t.Errorf("Expected %d dumps, got %d", tc.want, len(recorder.saved))
			}
		})
	}
}

func TestPollerResponseWriteFailureIsNotFatal(t *testing.T) {
	config := DefaultConfig()
	config.SaveJSONResponse = true
	collector := &scriptedCollector{script: []func() (*Collection, error){available}}

	p, _ := newTestPoller(t, config, collector, &fakeResponses{err: errors.New("read-only file system")})
	outcome, _, err := p.Run(context.Background())
	if err != nil || outcome != OutcomeAvailable {
		t.Errorf("Expected availability despite write failure, got %v %v", outcome, err)
	}
}

func TestPollerStartGate(t *testing.T) {
	config := DefaultConfig()
	config.StartAt = "2030-01-01 00:00"
	collector := &scriptedCollector{script: []func() (*Collection, error){available}}

	p, err := NewPoller(config, collector, nil)
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}
	// Skip the network sync and drive a fake clock.
	p.clock = nil
	now := time.Date(2029, 12, 31, 23, 59, 0, 0, time.UTC)
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return nil
	}
	p.nowFunc = func() time.Time { return now }

	outcome, _, err := p.Run(context.Background())
	if err != nil || outcome != OutcomeAvailable {
		t.Fatalf("Expected availability after the gate, got %v %v", outcome, err)
	}
	if len(sleeps) != 2 || sleeps[0] != 30*time.Second || sleeps[1] != 30*time.Second {
		t.Errorf("Expected two 30s waits before polling, got %v", sleeps)
	}
	if collector.calls != 1 {
		t.Errorf("Expected 1 cycle, got %d", collector.calls)
	}
}

func TestPollerStartGateCancelled(t *testing.T) {
	config := DefaultConfig()
	config.StartAt = "2030-01-01 00:00"
	collector := &scriptedCollector{script: []func() (*Collection, error){available}}

	p, err := NewPoller(config, collector, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.clock = nil
	p.nowFunc = func() time.Time { return time.Date(2029, 12, 31, 0, 0, 0, 0, time.UTC) }
	p.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	outcome, _, err := p.Run(context.Background())
	if err != nil || outcome != OutcomeCancelled {
		t.Errorf("Expected cancelled outcome, got %v %v", outcome, err)
	}
	if collector.calls != 0 {
		t.Errorf("Expected no cycles before the gate, got %d", collector.calls)
	}
}

func TestNewPollerRejectsBadStartAt(t *testing.T) {
	config := DefaultConfig()
	config.StartAt = "next tuesday"
	if _, err := NewPoller(config, &scriptedCollector{}, nil); err == nil {
		t.Error("Expected an error for an unparseable start time")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancelled sleep to return immediately")
	}
}
