package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNotFound means a locator did not resolve within its wait window.
var ErrNotFound = errors.New("element not found")

// Element is a resolved node the checkout flow can inspect and click.
type Element interface {
	Click() error
	Text() (string, error)
	Attribute(name string) (string, error)
	TagName() (string, error)
	Visible() bool
	Enabled() bool
	// Ancestor returns the closest ancestor with the given tag.
	Ancestor(tag string, wait time.Duration) (Element, error)
}

// Surface is a document context: the top page or an embedded frame.
type Surface interface {
	// Find waits up to loc.Wait for the locator to resolve.
	Find(loc Locator) (Element, error)
	// FindAll returns the current matches without waiting.
	FindAll(loc Locator) ([]Element, error)
	// Frame enters the document of an iframe element.
	Frame(el Element) (Surface, error)
}

// BrowserPage is the live authenticated tab handed to the checkout flow.
type BrowserPage interface {
	Surface
	Navigate(url string) error
	WaitLoad() error
	Screenshot() ([]byte, error)
	Location() (title, url string, err error)
}

const (
	navigationTimeout = 60 * time.Second
	clickTimeout      = 10 * time.Second
)

type rodSurface struct {
	page *rod.Page
}

type rodPage struct {
	rodSurface
}

type rodElement struct {
	el *rod.Element
}

// NewRodPage adapts a go-rod page to BrowserPage.
func NewRodPage(page *rod.Page) BrowserPage {
	return &rodPage{rodSurface{page: page}}
}

func notFound(loc Locator, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return err
}

func (s *rodSurface) Find(loc Locator) (Element, error) {
	wait := loc.Wait
	if wait <= 0 {
		wait = defaultLocatorWait
	}

	timed := s.page.Timeout(wait)
	defer timed.CancelTimeout()

	var el *rod.Element
	var err error
	switch loc.Strategy {
	case StrategyXPath:
		el, err = timed.ElementX(loc.Pattern)
	case StrategyText:
		el, err = timed.ElementR(loc.Pattern, regexp.QuoteMeta(loc.Text))
	default:
		el, err = timed.Element(loc.Pattern)
	}
	if err != nil {
		return nil, notFound(loc, err)
	}

	if loc.Interactable {
		if err := el.WaitVisible(); err != nil {
			return nil, notFound(loc, err)
		}
		if err := waitEnabled(el.GetContext(), el.Disabled); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s stayed disabled", ErrNotFound, loc)
			}
			return nil, err
		}
	}

	return &rodElement{el: el.CancelTimeout()}, nil
}

const enabledPollInterval = 100 * time.Millisecond

// waitEnabled re-checks disabled until it reports false or ctx ends.
func waitEnabled(ctx context.Context, disabled func() (bool, error)) error {
	ticker := time.NewTicker(enabledPollInterval)
	defer ticker.Stop()

	for {
		off, err := disabled()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !off {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *rodSurface) FindAll(loc Locator) ([]Element, error) {
	var els rod.Elements
	var err error
	switch loc.Strategy {
	case StrategyXPath:
		els, err = s.page.ElementsX(loc.Pattern)
	default:
		els, err = s.page.Elements(loc.Pattern)
	}
	if err != nil {
		return nil, err
	}

	result := make([]Element, 0, len(els))
	for _, el := range els {
		if loc.Strategy == StrategyText {
			text, err := el.Text()
			if err != nil || !strings.Contains(text, loc.Text) {
				continue
			}
		}
		result = append(result, &rodElement{el: el})
	}
	return result, nil
}

func (s *rodSurface) Frame(el Element) (Surface, error) {
	re, ok := el.(*rodElement)
	if !ok {
		return nil, fmt.Errorf("frame: unsupported element type %T", el)
	}
	frame, err := re.el.Frame()
	if err != nil {
		return nil, fmt.Errorf("failed to enter frame: %w", err)
	}
	return &rodSurface{page: frame}, nil
}

func (p *rodPage) Navigate(url string) error {
	timed := p.page.Timeout(navigationTimeout)
	defer timed.CancelTimeout()
	return timed.Navigate(url)
}

func (p *rodPage) WaitLoad() error {
	timed := p.page.Timeout(navigationTimeout)
	defer timed.CancelTimeout()
	return timed.WaitLoad()
}

func (p *rodPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(false, nil)
}

func (p *rodPage) Location() (string, string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", "", err
	}
	return info.Title, info.URL, nil
}

func (e *rodElement) Click() error {
	timed := e.el.Timeout(clickTimeout)
	defer timed.CancelTimeout()
	return timed.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, error) {
	value, err := e.el.Attribute(name)
	if err != nil || value == nil {
		return "", err
	}
	return *value, nil
}

func (e *rodElement) TagName() (string, error) {
	node, err := e.el.Describe(0, false)
	if err != nil {
		return "", err
	}
	return strings.ToLower(node.LocalName), nil
}

func (e *rodElement) Visible() bool {
	visible, err := e.el.Visible()
	return err == nil && visible
}

func (e *rodElement) Enabled() bool {
	disabled, err := e.el.Disabled()
	return err == nil && !disabled
}

func (e *rodElement) Ancestor(tag string, wait time.Duration) (Element, error) {
	timed := e.el.Timeout(wait)
	defer timed.CancelTimeout()

	parent, err := timed.ElementX(fmt.Sprintf("./ancestor::%s[1]", tag))
	if err != nil {
		return nil, notFound(Locator{Strategy: StrategyXPath, Pattern: "ancestor::" + tag}, err)
	}
	return &rodElement{el: parent.CancelTimeout()}, nil
}
