package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// PollRunner is the polling half of a session.
type PollRunner interface {
	Run(ctx context.Context) (Outcome, *PollCycle, error)
	Attempts() int64
}

// CheckoutRunner is the automation half of a session.
type CheckoutRunner interface {
	Run(page BrowserPage) CheckoutResult
}

// LivenessWatcher observes the browser while nothing else uses it.
type LivenessWatcher interface {
	Watch(onClosed func())
	StopWatch()
}

const notifyTimeout = 15 * time.Second

// Session wires polling to notification and checkout automation.
type Session struct {
	config   *Config
	poller   PollRunner
	notifier Notifier
	checkout CheckoutRunner
	page     BrowserPage
	watcher  LivenessWatcher
	prompt   func(ctx context.Context) (bool, error)
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSession(config *Config, poller PollRunner, notifier Notifier, checkout CheckoutRunner, page BrowserPage, watcher LivenessWatcher, prompt *Prompter) *Session {
	s := &Session{
		config:   config,
		poller:   poller,
		notifier: notifier,
		checkout: checkout,
		page:     page,
		watcher:  watcher,
		sleep:    sleepContext,
	}
	if prompt != nil {
		s.prompt = prompt.WaitForEnter
	}
	return s
}

// Run polls until tickets appear, the operator cancels, or the API rate
// limits us. Only the rate-limit case returns an error.
func (s *Session) Run(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Watch(cancel)
	}
	outcome, cycle, err := s.poller.Run(pollCtx)
	if s.watcher != nil {
		s.watcher.StopWatch()
	}

	if errors.Is(err, ErrRateLimited) {
		s.rateLimited(ctx)
		return err
	}
	if err != nil {
		return fmt.Errorf("polling failed: %w", err)
	}

	switch outcome {
	case OutcomeAvailable:
		s.available(ctx, cycle)
		return nil
	default:
		fmt.Println()
		fmt.Printf(T("session_cancelled")+"\n", s.poller.Attempts())
		return nil
	}
}

func (s *Session) rateLimited(ctx context.Context) {
	fmt.Println()
	fmt.Println(T("session_rate_limited"))
	fmt.Printf(T("session_rate_limit_current")+"\n", s.config.PollInterval)
	fmt.Println(T("session_rate_limit_recommend"))

	s.notify(ctx, Notification{
		Title:   T("notify_rate_limited_title"),
		Message: fmt.Sprintf(T("notify_rate_limited_body"), s.config.EventID, s.poller.Attempts()),
		Color:   ColorDanger,
	})
}

func (s *Session) available(ctx context.Context, cycle *PollCycle) {
	checkoutURL := s.config.EffectiveCheckoutURL()

	matched := 0
	if cycle != nil {
		matched = len(cycle.Verdict.Matched)
	}
	fmt.Println()
	fmt.Printf(T("session_available")+"\n", matched)

	s.notify(ctx, Notification{
		Title:   T("notify_available_title"),
		Message: fmt.Sprintf(T("notify_available_body"), s.config.EventID, s.poller.Attempts()),
		URL:     checkoutURL,
		Color:   ColorSuccess,
	})

	result, ok := s.runCheckout(ctx, checkoutURL)
	s.handoff(ctx, ok && result.Success)
}

func (s *Session) runCheckout(ctx context.Context, checkoutURL string) (CheckoutResult, bool) {
	if s.page == nil || s.checkout == nil {
		fmt.Println(T("session_no_browser"))
		return CheckoutResult{}, false
	}

	fmt.Printf(T("session_navigating")+"\n", checkoutURL)
	if err := s.page.Navigate(checkoutURL); err != nil {
		fmt.Printf(T("session_navigation_failed")+"\n", err)
		return CheckoutResult{}, false
	}
	if err := s.page.WaitLoad(); err != nil {
		fmt.Printf(T("session_navigation_failed")+"\n", err)
		return CheckoutResult{}, false
	}
	if err := s.sleep(ctx, s.config.SettleDelay()); err != nil {
		return CheckoutResult{}, false
	}

	if title, _, err := s.page.Location(); err == nil {
		fmt.Printf(T("checkout_page_title")+"\n", title)
	}

	return s.checkout.Run(s.page), true
}

func (s *Session) handoff(ctx context.Context, success bool) {
	fmt.Println()
	if success {
		fmt.Println(T("handoff_success_header"))
		fmt.Println(T("handoff_success_instructions"))
	} else {
		fmt.Println(T("handoff_failure_header"))
		fmt.Println(T("handoff_failure_instructions"))
	}

	if s.prompt == nil {
		return
	}

	fmt.Println()
	fmt.Print(T("handoff_prompt"))
	if _, err := s.prompt(ctx); err != nil && ctx.Err() == nil {
		fmt.Printf(T("handoff_input_error")+"\n", err)
	}
	fmt.Println()
}

func (s *Session) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}

	// Deliver even if the run was interrupted a moment ago.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(notifyCtx, n); err != nil {
		fmt.Printf(T("notify_failed")+"\n", err)
	}
}

// Prompter reads operator keys from one shared reader: Enter confirms,
// ESC declines.
type Prompter struct {
	in   io.Reader
	once sync.Once
	keys chan byte
	errs chan error
}

func NewPrompter(in io.Reader) *Prompter {
	return &Prompter{
		in:   in,
		keys: make(chan byte),
		errs: make(chan error, 1),
	}
}

func (p *Prompter) start() {
	go func() {
		reader := bufio.NewReader(p.in)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				p.errs <- err
				return
			}
			p.keys <- b
		}
	}()
}

// WaitForEnter blocks until Enter (true), ESC (false), a read error, or
// ctx cancellation.
func (p *Prompter) WaitForEnter(ctx context.Context) (bool, error) {
	p.once.Do(p.start)

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case err := <-p.errs:
			p.errs <- err
			return false, err
		case b := <-p.keys:
			switch b {
			case '\n', '\r':
				return true, nil
			case 27:
				return false, nil
			}
		}
	}
}
