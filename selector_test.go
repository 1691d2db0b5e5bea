package main

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func candidates(patterns ...string) []Locator {
	locators := make([]Locator, len(patterns))
	for i, p := range patterns {
		locators[i] = Locator{Strategy: StrategyCSS, Pattern: p, Wait: 10 * time.Millisecond}
	}
	return locators
}

func TestResolveFirstSuccessWins(t *testing.T) {
	surface := newFakeSurface()
	b := &fakeElement{tag: "button", text: "Check availability"}
	surface.found["#b"] = b
	surface.found["#c"] = &fakeElement{tag: "button"}

	res := NewSelectorResolver(false).Resolve(surface, "check_availability", candidates("#a", "#b", "#c"))

	if res.Status != Resolved {
		t.Fatalf("Expected Resolved, got %v (%v)", res.Status, res.Err)
	}
	if res.Element != b {
		t.Error("Expected the element found by candidate B")
	}
	if res.Locator.Pattern != "#b" {
		t.Errorf("Expected locator #b, got %s", res.Locator)
	}
	if tried := fmt.Sprint(surface.triedPatterns()); tried != "[#a #b]" {
		t.Errorf("Expected candidates A then B only, got %s", tried)
	}
}

func TestResolveAllNotFound(t *testing.T) {
	surface := newFakeSurface()

	res := NewSelectorResolver(false).Resolve(surface, "register", candidates("#a", "#b", "#c"))

	if res.Status != NotFound {
		t.Fatalf("Expected NotFound, got %v", res.Status)
	}
	if !errors.Is(res.Err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound in chain, got %v", res.Err)
	}
	if res.Element != nil {
		t.Error("Expected no element")
	}
	if len(surface.triedPatterns()) != 3 {
		t.Errorf("Expected every candidate to be tried, got %v", surface.triedPatterns())
	}
}

func TestResolveRecoversCandidatePanic(t *testing.T) {
	surface := newFakeSurface()
	surface.panics["#a"] = true
	surface.found["#b"] = &fakeElement{tag: "button"}

	res := NewSelectorResolver(false).Resolve(surface, "time_slot", candidates("#a", "#b"))

	if res.Status != Resolved {
		t.Fatalf("Expected panic in A to fall through to B, got %v (%v)", res.Status, res.Err)
	}
}

func TestResolveErroredWhenCandidateFailsUnexpectedly(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(s *fakeSurface)
		want  ResolveStatus
	}{
		{
			name:  "transport error",
			setup: func(s *fakeSurface) { s.errs["#a"] = errors.New("websocket closed") },
			want:  Errored,
		},
		{
			name:  "panic only",
			setup: func(s *fakeSurface) { s.panics["#a"] = true },
			want:  Errored,
		},
		{
			name:  "plain misses",
			setup: func(s *fakeSurface) {},
			want:  NotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			surface := newFakeSurface()
			tc.setup(surface)

			res := NewSelectorResolver(false).Resolve(surface, "register", candidates("#a", "#b"))
			if res.Status != tc.want {
				t.Errorf("Expected %v, got %v (%v)", tc.want, res.Status, res.Err)
			}
		})
	}
}

func TestResolveNoCandidates(t *testing.T) {
	res := NewSelectorResolver(false).Resolve(newFakeSurface(), "register", nil)
	if res.Status != NotFound || res.Err == nil {
		t.Errorf("Expected NotFound with an error, got %v (%v)", res.Status, res.Err)
	}
}

func TestResolveSkipsNonInteractable(t *testing.T) {
	surface := newFakeSurface()
	surface.found["#a"] = &fakeElement{tag: "button", disabled: true}
	surface.found["#b"] = &fakeElement{tag: "button"}

	locs := candidates("#a", "#b")
	for i := range locs {
		locs[i].Interactable = true
	}

	res := NewSelectorResolver(false).Resolve(surface, "register", locs)
	if !res.OK() || res.Locator.Pattern != "#b" {
		t.Errorf("Expected disabled A to be skipped for B, got %v via %s", res.Status, res.Locator)
	}
}

func TestLocatorsFrom(t *testing.T) {
	locs := locatorsFrom([]LocatorConfig{
		{Strategy: "XPath", Pattern: "//button", WaitMs: 250},
		{Pattern: "button.primary"},
		{Strategy: "text", Pattern: "button", Text: "Register", WaitMs: 1000},
	}, true)

	if len(locs) != 3 {
		t.Fatalf("Expected 3 locators, got %d", len(locs))
	}
	if locs[0].Strategy != StrategyXPath || locs[0].Wait != 250*time.Millisecond {
		t.Errorf("Unexpected first locator %+v", locs[0])
	}
	if locs[1].Strategy != StrategyCSS || locs[1].Wait != defaultLocatorWait {
		t.Errorf("Expected css default with default wait, got %+v", locs[1])
	}
	if !locs[2].Interactable || locs[2].Text != "Register" {
		t.Errorf("Unexpected text locator %+v", locs[2])
	}
	if got := locs[2].String(); got != `text:button["Register"]` {
		t.Errorf("Unexpected String() %q", got)
	}
}
