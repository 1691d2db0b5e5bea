package main

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// ScreenshotRecorder stores a point-in-time capture of the page.
type ScreenshotRecorder interface {
	SaveScreenshot(prefix string, data []byte) (string, error)
}

type StepAction int

const (
	ActionClick StepAction = iota
	ActionEnterFrame
)

func (a StepAction) String() string {
	if a == ActionEnterFrame {
		return "enter-frame"
	}
	return "click"
}

// AutomationStep is one node of the checkout sequence. Steps run in
// order with no back-edges.
type AutomationStep struct {
	Name       string
	Label      string
	Candidates []Locator
	Action     StepAction
	Terminal   bool

	// locate replaces candidate resolution for steps that need more than
	// an ordered locator list.
	locate func(surface Surface) Resolution
}

type StepResult struct {
	Step       string
	Resolution Resolution
	Skipped    bool
	Err        error
}

// CheckoutResult is the outcome of one automation attempt.
type CheckoutResult struct {
	Success        bool
	FailedStep     string
	Err            error
	Steps          []StepResult
	Title          string
	URL            string
	ScreenshotPath string
}

// CheckoutMachine drives the registration widget up to the point where a
// human confirms the order.
type CheckoutMachine struct {
	resolver     *SelectorResolver
	recorder     ScreenshotRecorder
	steps        []AutomationStep
	dates        dateSelectors
	ancestorWait time.Duration
	debug        bool
}

type dateSelectors struct {
	buttonXPath  string
	numericXPath string
	listItemCSS  string
	calendarCSS  string
}

func NewCheckoutMachine(config *Config, recorder ScreenshotRecorder) *CheckoutMachine {
	m := &CheckoutMachine{
		resolver:     NewSelectorResolver(config.DebugMode),
		recorder:     recorder,
		ancestorWait: 2 * time.Second,
		debug:        config.DebugMode,
		dates: dateSelectors{
			buttonXPath:  config.Selectors.DateButtonXPath,
			numericXPath: config.Selectors.DateNumericXPath,
			listItemCSS:  config.Selectors.DateListItemCSS,
			calendarCSS:  config.Selectors.DateCalendarCSS,
		},
	}

	frames := locatorsFrom(config.Selectors.WidgetFrame, false)
	if wait := config.FrameWait(); wait > 0 {
		for i := range frames {
			frames[i].Wait = wait
		}
	}

	m.steps = []AutomationStep{
		{
			Name:       "check_availability",
			Label:      T("step_check_availability"),
			Candidates: locatorsFrom(config.Selectors.CheckAvailability, true),
			Action:     ActionClick,
			Terminal:   true,
		},
		{
			Name:       "enter_widget_frame",
			Label:      T("step_enter_widget_frame"),
			Candidates: frames,
			Action:     ActionEnterFrame,
			Terminal:   false,
		},
		{
			Name:     "select_date",
			Label:    T("step_select_date"),
			Action:   ActionClick,
			Terminal: true,
			locate:   m.locateDate,
		},
		{
			Name:       "select_time_slot",
			Label:      T("step_select_time_slot"),
			Candidates: locatorsFrom(config.Selectors.TimeSlot, true),
			Action:     ActionClick,
			Terminal:   true,
		},
		{
			Name:       "register",
			Label:      T("step_register"),
			Candidates: locatorsFrom(config.Selectors.Register, true),
			Action:     ActionClick,
			Terminal:   true,
		},
	}

	return m
}

// Steps returns the fixed step sequence.
func (m *CheckoutMachine) Steps() []AutomationStep {
	return m.steps
}

// Run walks every step once against page. It never panics; any failure,
// expected or not, is returned as an unsuccessful result after a single
// diagnostic screenshot.
func (m *CheckoutMachine) Run(page BrowserPage) (result CheckoutResult) {
	defer func() {
		if p := recover(); p != nil {
			fmt.Printf(T("checkout_unexpected_error")+"\n", p)
			fmt.Printf("%s\n", debug.Stack())
			result = m.fail(page, "unexpected", fmt.Errorf("panic: %v", p), result.Steps)
		}
	}()

	var surface Surface = page

	for i, step := range m.steps {
		fmt.Printf(T("checkout_step")+"\n", i+1, step.Label)

		res := m.resolve(surface, step)
		if !res.OK() {
			if !step.Terminal {
				fmt.Printf(T("checkout_step_skipped")+"\n", step.Label)
				result.Steps = append(result.Steps, StepResult{Step: step.Name, Resolution: res, Skipped: true})
				continue
			}
			result.Steps = append(result.Steps, StepResult{Step: step.Name, Resolution: res, Err: res.Err})
			return m.fail(page, step.Name, res.Err, result.Steps)
		}

		var err error
		switch step.Action {
		case ActionEnterFrame:
			var frame Surface
			if frame, err = surface.Frame(res.Element); err == nil {
				surface = frame
				fmt.Println(T("checkout_frame_entered"))
			}
		default:
			if err = res.Element.Click(); err == nil {
				fmt.Printf(T("checkout_clicked")+"\n", step.Label)
			}
		}

		if err != nil {
			err = fmt.Errorf("%s: %s failed: %w", step.Name, step.Action, err)
			if !step.Terminal {
				fmt.Printf(T("checkout_step_skipped")+"\n", step.Label)
				m.debugLog("%v", err)
				result.Steps = append(result.Steps, StepResult{Step: step.Name, Resolution: res, Skipped: true, Err: err})
				continue
			}
			res.Status = Errored
			res.Err = err
			result.Steps = append(result.Steps, StepResult{Step: step.Name, Resolution: res, Err: err})
			return m.fail(page, step.Name, err, result.Steps)
		}

		result.Steps = append(result.Steps, StepResult{Step: step.Name, Resolution: res})
	}

	result.Success = true
	result.Title, result.URL, _ = page.Location()
	fmt.Println(T("checkout_completed"))
	return result
}

func (m *CheckoutMachine) resolve(surface Surface, step AutomationStep) Resolution {
	if step.locate != nil {
		return step.locate(surface)
	}
	return m.resolver.Resolve(surface, step.Name, step.Candidates)
}

// fail records the page location and one screenshot for operator triage.
func (m *CheckoutMachine) fail(page BrowserPage, step string, err error, steps []StepResult) CheckoutResult {
	result := CheckoutResult{
		Success:    false,
		FailedStep: step,
		Err:        err,
		Steps:      steps,
	}

	fmt.Printf(T("checkout_failed")+"\n", step)
	if err != nil {
		fmt.Printf(T("checkout_error_details")+"\n", err)
	}

	func() {
		defer func() {
			if p := recover(); p != nil {
				fmt.Printf(T("checkout_screenshot_failed")+"\n", p)
			}
		}()

		if title, url, err := page.Location(); err == nil {
			result.Title, result.URL = title, url
			fmt.Printf(T("checkout_current_url")+"\n", url)
			fmt.Printf(T("checkout_page_title")+"\n", title)
		}

		data, err := page.Screenshot()
		if err != nil {
			fmt.Printf(T("checkout_screenshot_failed")+"\n", err)
			return
		}
		if m.recorder == nil {
			return
		}
		path, err := m.recorder.SaveScreenshot("error_screenshot", data)
		if err != nil {
			fmt.Printf(T("checkout_screenshot_failed")+"\n", err)
			return
		}
		result.ScreenshotPath = path
		fmt.Printf(T("checkout_screenshot_saved")+"\n", path)
	}()

	return result
}

// dateStrategy is one way of finding a selectable calendar day.
type dateStrategy struct {
	name string
	find func(surface Surface) (Element, error)
}

func (m *CheckoutMachine) dateStrategies() []dateStrategy {
	return []dateStrategy{
		{name: "enabled numeric buttons", find: m.findDateButton},
		{name: "numeric text elements", find: m.findNumericDate},
		{name: "enabled list items", find: m.findEnabledListItem},
		{name: "calendar container buttons", find: m.findCalendarButton},
	}
}

// locateDate tries each date strategy in order; the first hit wins.
func (m *CheckoutMachine) locateDate(surface Surface) Resolution {
	if m.debug {
		m.describeButtons(surface)
	}

	var lastErr error
	for _, strategy := range m.dateStrategies() {
		m.debugLog("date search: trying %s", strategy.name)
		el, err := m.tryDateStrategy(surface, strategy)
		if err == nil && el != nil {
			fmt.Printf(T("checkout_date_found")+"\n", strategy.name)
			return Resolution{Status: Resolved, Element: el, Locator: Locator{Strategy: "date", Pattern: strategy.name}}
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			fmt.Printf(T("checkout_date_strategy_error")+"\n", strategy.name, err)
		}
		lastErr = err
	}

	return Resolution{
		Status: NotFound,
		Err:    fmt.Errorf("select_date: %w: could not find available date button (last: %v)", ErrNotFound, lastErr),
	}
}

func (m *CheckoutMachine) tryDateStrategy(surface Surface, strategy dateStrategy) (el Element, err error) {
	defer func() {
		if p := recover(); p != nil {
			el = nil
			err = fmt.Errorf("%s panicked: %v", strategy.name, p)
		}
	}()

	el, err = strategy.find(surface)
	if err == nil && el == nil {
		err = fmt.Errorf("%w: %s", ErrNotFound, strategy.name)
	}
	return el, err
}

func (m *CheckoutMachine) findDateButton(surface Surface) (Element, error) {
	buttons, err := surface.FindAll(Locator{Strategy: StrategyXPath, Pattern: m.dates.buttonXPath})
	if err != nil {
		return nil, err
	}
	m.debugLog("found %d button date elements", len(buttons))

	for _, btn := range buttons {
		if btn.Visible() && btn.Enabled() {
			return btn, nil
		}
	}
	return nil, fmt.Errorf("%w: no enabled date buttons", ErrNotFound)
}

func (m *CheckoutMachine) findNumericDate(surface Surface) (Element, error) {
	elements, err := surface.FindAll(Locator{Strategy: StrategyXPath, Pattern: m.dates.numericXPath})
	if err != nil {
		return nil, err
	}
	m.debugLog("found %d potential date elements", len(elements))

	for _, el := range elements {
		if !el.Visible() {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if !isDayNumber(text) {
			continue
		}

		tag, _ := el.TagName()
		classes, _ := el.Attribute("class")
		m.debugLog("  element %s text=%q class=%q", tag, text, classes)

		// Calendar cells render the day in <p class="...dateText..."> but
		// only the enclosing <li> takes the click.
		if tag == "p" && strings.Contains(classes, "dateText") {
			parent, err := el.Ancestor("li", m.ancestorWait)
			if err != nil {
				continue
			}
			parentClasses, _ := parent.Attribute("class")
			if hasClass(parentClasses, "unavailable", "disabled") {
				m.debugLog("  date %s is unavailable, trying next", text)
				continue
			}
			return parent, nil
		}

		return el, nil
	}
	return nil, fmt.Errorf("%w: no selectable numeric date", ErrNotFound)
}

func (m *CheckoutMachine) findEnabledListItem(surface Surface) (Element, error) {
	items, err := surface.FindAll(Locator{Strategy: StrategyCSS, Pattern: m.dates.listItemCSS})
	if err != nil {
		return nil, err
	}
	m.debugLog("found %d li elements", len(items))

	for _, li := range items {
		classes, err := li.Attribute("class")
		if err != nil {
			continue
		}
		if li.Visible() && hasClass(classes, "enabled") {
			return li, nil
		}
	}
	return nil, fmt.Errorf("%w: no enabled list items", ErrNotFound)
}

func (m *CheckoutMachine) findCalendarButton(surface Surface) (Element, error) {
	buttons, err := surface.FindAll(Locator{Strategy: StrategyCSS, Pattern: m.dates.calendarCSS})
	if err != nil {
		return nil, err
	}
	m.debugLog("found %d buttons in calendar area", len(buttons))

	for _, btn := range buttons {
		text, err := btn.Text()
		if err != nil {
			continue
		}
		if btn.Visible() && btn.Enabled() && isDigits(strings.TrimSpace(text)) {
			return btn, nil
		}
	}
	return nil, fmt.Errorf("%w: no clickable numeric calendar buttons", ErrNotFound)
}

// describeButtons prints a sample of the buttons on the surface to help
// adjust selectors when the widget markup changes.
func (m *CheckoutMachine) describeButtons(surface Surface) {
	buttons, err := surface.FindAll(Locator{Strategy: StrategyCSS, Pattern: "button"})
	if err != nil {
		m.debugLog("could not list buttons: %v", err)
		return
	}
	m.debugLog("found %d total buttons", len(buttons))
	for i, btn := range buttons {
		if i >= 10 {
			break
		}
		text, _ := btn.Text()
		classes, _ := btn.Attribute("class")
		if strings.TrimSpace(text) == "" {
			text = "[no text]"
		}
		m.debugLog("  [%d] text=%q class=%q", i, strings.TrimSpace(text), classes)
	}

	if dates, err := surface.FindAll(Locator{Strategy: StrategyXPath, Pattern: "//*[contains(text(), 'Date')]"}); err == nil {
		m.debugLog("found %d elements containing 'Date'", len(dates))
	}
}

func (m *CheckoutMachine) debugLog(format string, args ...interface{}) {
	if m.debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isDayNumber(s string) bool {
	if !isDigits(s) {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1 && n <= 31
}

// hasClass reports whether a class attribute mentions any of the words,
// ignoring case.
func hasClass(classes string, words ...string) bool {
	classes = strings.ToLower(classes)
	for _, w := range words {
		if strings.Contains(classes, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
