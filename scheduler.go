package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collector runs the fetch half of one poll cycle.
type Collector interface {
	Collect(ctx context.Context) (*Collection, error)
}

// ResponseRecorder persists the raw pages of a cycle.
type ResponseRecorder interface {
	SaveResponses(pages []*Page, totalTickets int) (string, error)
}

type PollerState int

const (
	StateRunning PollerState = iota
	StateStopped
)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAvailable
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAvailable:
		return "availability found"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "none"
}

// Poller owns the timing loop: one cycle, a fixed sleep, repeat.
type Poller struct {
	collector Collector
	interval  time.Duration
	startAt   time.Time
	clock     *ServerClock
	recorder  ResponseRecorder
	debug     bool

	sleep   func(ctx context.Context, d time.Duration) error
	nowFunc func() time.Time

	state    PollerState
	attempts int64
}

func NewPoller(config *Config, collector Collector, recorder ResponseRecorder) (*Poller, error) {
	p := &Poller{
		collector: collector,
		interval:  config.PollIntervalDuration(),
		debug:     config.DebugMode,
		sleep:     sleepContext,
	}

	if config.SaveJSONResponse {
		p.recorder = recorder
	}

	if config.StartAt != "" {
		startAt, err := ParseStartTime(config.StartAt)
		if err != nil {
			return nil, err
		}
		p.startAt = startAt
		p.clock = NewServerClock(config.DebugMode, config.APIBaseURL, config.LoginURL)
	}

	return p, nil
}

// Attempts returns the number of cycles started so far.
func (p *Poller) Attempts() int64 {
	return p.attempts
}

func (p *Poller) State() PollerState {
	return p.state
}

// Run polls until a cycle finds availability or ctx is cancelled. A
// rate-limit error ends Run immediately with ErrRateLimited.
func (p *Poller) Run(ctx context.Context) (Outcome, *PollCycle, error) {
	p.state = StateRunning
	defer func() { p.state = StateStopped }()

	if !p.startAt.IsZero() {
		if err := p.waitUntilStart(ctx); err != nil {
			return OutcomeCancelled, nil, nil
		}
	}

	for {
		if ctx.Err() != nil {
			return OutcomeCancelled, nil, nil
		}

		cycle, err := p.runCycle(ctx)
		if err != nil {
			return OutcomeNone, cycle, err
		}

		if cycle.Verdict.Available {
			return OutcomeAvailable, cycle, nil
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return OutcomeCancelled, cycle, nil
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) (*PollCycle, error) {
	p.attempts++
	fmt.Printf(T("poll_checking")+"\n", p.attempts)

	collection, err := p.collector.Collect(ctx)
	if err == nil && p.halted() {
		err = ErrRateLimited
	}
	if errors.Is(err, ErrRateLimited) {
		return &PollCycle{Attempt: p.attempts}, err
	}
	if err != nil {
		// A failed cycle simply counts as not available.
		fmt.Printf(T("poll_cycle_failed")+"\n", err)
	}
	if collection == nil {
		collection = &Collection{}
	}

	verdict := EvaluateCollection(collection)
	cycle := &PollCycle{
		Attempt: p.attempts,
		Tickets: collection.Tickets,
		Pages:   len(collection.Pages),
		Verdict: verdict,
	}

	if p.recorder != nil && len(collection.Pages) > 0 {
		if path, err := p.recorder.SaveResponses(collection.Pages, len(collection.Tickets)); err != nil {
			fmt.Printf(T("artifact_response_failed")+"\n", err)
		} else {
			p.debugLog("responses saved to %s", path)
		}
	}

	if verdict.Available {
		if collection.EarlyPage > 0 {
			fmt.Printf(T("poll_available_early")+"\n", collection.EarlyPage)
		} else {
			fmt.Printf(T("poll_available")+"\n", len(verdict.Matched), verdict.Inspected)
		}
		for _, tc := range verdict.Matched {
			fmt.Printf("  → %s (%s)\n", tc.Name, tc.ID)
		}
	} else {
		fmt.Printf(T("poll_not_available")+"\n", verdict.Inspected)
	}

	return cycle, nil
}

// waitUntilStart sleeps until startAt on the synced clock, printing a
// progress line every 30 seconds.
func (p *Poller) waitUntilStart(ctx context.Context) error {
	if p.clock != nil {
		if err := p.clock.Sync(ctx); err != nil {
			fmt.Printf(T("timesync_failed")+"\n", err)
		} else {
			fmt.Printf(T("timesync_offset")+"\n", p.clock.Skew())
		}
	}

	now := p.now()
	if !now.Before(p.startAt) {
		return nil
	}

	fmt.Printf(T("poll_waiting_for_start")+"\n", p.startAt.Local().Format("2006-01-02 15:04:05 MST"), p.startAt.Sub(now).Round(time.Second))

	for {
		remaining := p.startAt.Sub(p.now())
		if remaining <= 0 {
			return nil
		}

		step := remaining
		if step > 30*time.Second {
			step = 30 * time.Second
		}
		if err := p.sleep(ctx, step); err != nil {
			return err
		}

		if p.clock != nil && p.clock.Stale() {
			if err := p.clock.Sync(ctx); err != nil {
				p.debugLog("resync failed: %v", err)
			}
		}

		if remaining = p.startAt.Sub(p.now()); remaining > 0 {
			fmt.Printf(T("poll_waiting_update")+"\n", remaining.Round(time.Second))
		}
	}
}

// halted reports a rate limit latched by the collector outside the
// error it returned, such as a late page of an early-exit cycle.
func (p *Poller) halted() bool {
	h, ok := p.collector.(interface{ Halted() bool })
	return ok && h.Halted()
}

func (p *Poller) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	if p.clock != nil {
		return p.clock.Now()
	}
	return time.Now()
}

func (p *Poller) debugLog(format string, args ...interface{}) {
	if p.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
