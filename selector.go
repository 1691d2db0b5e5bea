package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Locator strategies.
const (
	StrategyCSS   = "css"
	StrategyXPath = "xpath"
	StrategyText  = "text" // css selector whose text must contain Text
)

// defaultLocatorWait bounds candidates configured without a wait.
const defaultLocatorWait = 5 * time.Second

// Locator is one guess at where a logical UI target lives in the page.
type Locator struct {
	Strategy     string
	Pattern      string
	Text         string
	Wait         time.Duration
	Interactable bool
}

func (l Locator) String() string {
	if l.Strategy == StrategyText {
		return fmt.Sprintf("%s:%s[%q]", l.Strategy, l.Pattern, l.Text)
	}
	return fmt.Sprintf("%s:%s", l.Strategy, l.Pattern)
}

// locatorsFrom converts YAML candidates into Locators. interactable marks
// targets that must be visible and enabled, not just present.
func locatorsFrom(configs []LocatorConfig, interactable bool) []Locator {
	locators := make([]Locator, 0, len(configs))
	for _, c := range configs {
		strategy := strings.ToLower(strings.TrimSpace(c.Strategy))
		if strategy == "" {
			strategy = StrategyCSS
		}
		wait := time.Duration(c.WaitMs) * time.Millisecond
		if wait <= 0 {
			wait = defaultLocatorWait
		}
		locators = append(locators, Locator{
			Strategy:     strategy,
			Pattern:      c.Pattern,
			Text:         c.Text,
			Wait:         wait,
			Interactable: interactable,
		})
	}
	return locators
}

type ResolveStatus int

const (
	Resolved ResolveStatus = iota
	NotFound
	Errored
)

func (s ResolveStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case NotFound:
		return "not found"
	case Errored:
		return "error"
	}
	return "unknown"
}

// Resolution is the typed outcome of resolving one logical target.
type Resolution struct {
	Status  ResolveStatus
	Element Element
	Locator Locator
	Err     error
}

func (r Resolution) OK() bool {
	return r.Status == Resolved
}

// SelectorResolver tries candidate locators in order and keeps the first
// that resolves within its own wait window.
type SelectorResolver struct {
	debug bool
}

func NewSelectorResolver(debug bool) *SelectorResolver {
	return &SelectorResolver{debug: debug}
}

// Resolve never panics and never tries a candidate after one succeeds.
// When every candidate fails it reports NotFound, or Errored if at least
// one candidate failed for a reason other than not being found.
func (r *SelectorResolver) Resolve(surface Surface, target string, candidates []Locator) Resolution {
	var lastErr error
	errored := false

	for i, loc := range candidates {
		el, err := r.try(surface, loc)
		if err == nil {
			fmt.Printf(T("selector_found")+"\n", target, loc)
			return Resolution{Status: Resolved, Element: el, Locator: loc}
		}

		r.debugLog("%s: candidate %d/%d %s failed: %v", target, i+1, len(candidates), loc, err)
		lastErr = err
		if !errors.Is(err, ErrNotFound) {
			errored = true
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no candidates for %s", ErrNotFound, target)
	}
	if errored {
		return Resolution{Status: Errored, Err: fmt.Errorf("%s: %w", target, lastErr)}
	}
	return Resolution{Status: NotFound, Err: fmt.Errorf("%s: %w", target, lastErr)}
}

func (r *SelectorResolver) try(surface Surface, loc Locator) (el Element, err error) {
	defer func() {
		if p := recover(); p != nil {
			el = nil
			err = fmt.Errorf("candidate %s panicked: %v", loc, p)
		}
	}()

	el, err = surface.Find(loc)
	if err == nil && el == nil {
		err = fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return el, err
}

func (r *SelectorResolver) debugLog(format string, args ...interface{}) {
	if r.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}
