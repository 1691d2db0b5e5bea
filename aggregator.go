package main

import (
	"context"
	"errors"
	"fmt"
)

// PageFetcher is the single-page contract the aggregator drives.
type PageFetcher interface {
	Fetch(ctx context.Context, page int) (*Page, error)
}

// Collection is the merged result of one poll cycle. When the cycle ended
// early, EarlyMatch holds the AVAILABLE entries of the page that ended it.
type Collection struct {
	Tickets    []TicketClass
	Pages      []*Page
	EarlyMatch []TicketClass
	EarlyPage  int
}

// Aggregator walks every page of the collection for one cycle.
type Aggregator struct {
	fetcher    PageFetcher
	parallel   bool
	earlyExit  bool
	maxWorkers int
	debug      bool
}

func NewAggregator(config *Config, fetcher PageFetcher) *Aggregator {
	return &Aggregator{
		fetcher:    fetcher,
		parallel:   config.ParallelFetch,
		earlyExit:  config.EarlyExit,
		maxWorkers: config.MaxWorkers,
		debug:      config.DebugMode,
	}
}

// Collect gathers the ticket classes for one cycle. The only error it
// returns is ErrRateLimited, or ErrNoData when page 1 itself failed.
func (a *Aggregator) Collect(ctx context.Context) (*Collection, error) {
	if a.parallel {
		return a.collectConcurrent(ctx)
	}
	return a.collectSequential(ctx)
}

func (c *Collection) merge(p *Page) {
	c.Pages = append(c.Pages, p)
	c.Tickets = append(c.Tickets, p.Tickets...)
}

// earlyHit records p as the page that ended the cycle when early exit is
// on and p carries an AVAILABLE entry.
func (a *Aggregator) earlyHit(c *Collection, p *Page) bool {
	if !a.earlyExit {
		return false
	}
	matched := availableIn(p.Tickets)
	if len(matched) == 0 {
		return false
	}
	c.EarlyMatch = matched
	c.EarlyPage = p.Number
	return true
}

// collectSequential fetches pages in increasing order and stops at the
// first page that fails or reports no more items.
func (a *Aggregator) collectSequential(ctx context.Context) (*Collection, error) {
	c := &Collection{}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			break
		}

		p, err := a.fetcher.Fetch(ctx, page)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				return nil, err
			}
			if page == 1 {
				return c, err
			}
			a.debugLog("sequential fetch stopped at page %d: %v", page, err)
			break
		}

		c.merge(p)

		if a.earlyHit(c, p) {
			return c, nil
		}

		if !p.HasMore {
			break
		}
	}

	return c, nil
}

type pageResult struct {
	page *Page
	err  error
}

// collectConcurrent fetches page 1 alone, then fans pages 2..N out to a
// bounded pool and merges them in completion order.
func (a *Aggregator) collectConcurrent(ctx context.Context) (*Collection, error) {
	c := &Collection{}

	first, err := a.fetcher.Fetch(ctx, 1)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return c, err
	}

	c.merge(first)
	if a.earlyHit(c, first) {
		return c, nil
	}

	pageCount := first.PageCount
	if pageCount <= 1 {
		return c, nil
	}

	// Cancelled once the cycle is decided so queued pages skip the fetch.
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered to the job count so workers whose results are discarded
	// never block.
	results := make(chan pageResult, pageCount-1)
	pool := NewWorkerPool(a.maxWorkers, pageCount-1)
	for page := 2; page <= pageCount; page++ {
		page := page
		pool.Submit(func() {
			if err := cycleCtx.Err(); err != nil {
				results <- pageResult{err: err}
				return
			}
			p, err := a.fetcher.Fetch(cycleCtx, page)
			results <- pageResult{page: p, err: err}
		})
	}
	pool.Close()

	for received := 0; received < pageCount-1; received++ {
		r := <-results
		if r.err != nil {
			if errors.Is(r.err, ErrRateLimited) {
				cancel()
				pool.Wait()
				return nil, r.err
			}
			a.debugLog("concurrent fetch skipped a page: %v", r.err)
			continue
		}

		c.merge(r.page)
		if a.earlyHit(c, r.page) {
			cancel()
			if err := a.settle(pool, results); err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	return c, nil
}

// settle waits for the fetches still in flight after an early exit and
// reports a rate limit any of them hit. Nothing fetches once it returns.
func (a *Aggregator) settle(pool *WorkerPool, results chan pageResult) error {
	pool.Wait()
	close(results)

	for r := range results {
		if errors.Is(r.err, ErrRateLimited) {
			return r.err
		}
	}
	return nil
}

// Halted reports whether the fetcher has latched a rate limit.
func (a *Aggregator) Halted() bool {
	if h, ok := a.fetcher.(interface{ Halted() bool }); ok {
		return h.Halted()
	}
	return false
}

func (a *Aggregator) debugLog(format string, args ...interface{}) {
	if a.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}
