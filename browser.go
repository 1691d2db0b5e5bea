package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrLoginCancelled is returned when the operator aborts the login prompt.
var ErrLoginCancelled = errors.New("user canceled login")

// Browser owns the single authenticated browser context. The login
// bootstrap creates it; it is closed only at process exit.
type Browser struct {
	config   *Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher

	watchMu   sync.Mutex
	stopWatch chan struct{}
	watchDone chan struct{}
}

func NewBrowser(config *Config) *Browser {
	return &Browser{config: config}
}

func (b *Browser) Close() {
	b.StopWatch()

	fmt.Println(T("cleaning_up"))

	if b.page != nil {
		b.page.Close()
	}

	if b.browser != nil {
		b.browser.Close()
	}

	if b.launcher != nil {
		b.launcher.Cleanup()
	}

	fmt.Println(T("browser_closed"))
}

// Page returns the live tab, or nil before Launch.
func (b *Browser) Page() BrowserPage {
	if b.page == nil {
		return nil
	}
	return NewRodPage(b.page)
}

func (b *Browser) isAlive() bool {
	if b.browser == nil {
		return false
	}

	if _, err := b.browser.Version(); err != nil {
		b.debugLog("Browser version check failed: %v", err)
		return false
	}

	if b.page != nil {
		if _, err := b.page.Info(); err != nil {
			b.debugLog("Page info check failed: %v", err)
			return false
		}
	}

	return true
}

// Watch checks the browser every two seconds while polling runs and
// calls onClosed if the operator closes it. Only the watcher touches the
// browser until StopWatch returns.
func (b *Browser) Watch(onClosed func()) {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if b.stopWatch != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	b.stopWatch, b.watchDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !b.isAlive() {
					fmt.Println(T("browser_closed_by_user"))
					onClosed()
					return
				}
			}
		}
	}()
}

// StopWatch stops the liveness watcher and waits for it to exit, handing
// the browser to the caller.
func (b *Browser) StopWatch() {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if b.stopWatch == nil {
		return
	}
	close(b.stopWatch)
	<-b.watchDone
	b.stopWatch, b.watchDone = nil, nil
}

func (b *Browser) debugLog(format string, args ...interface{}) {
	if b.config.DebugMode {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// Launch starts Chrome with the persistent profile so the login survives
// restarts.
func (b *Browser) Launch() error {
	fmt.Println(T("browser_launching"))

	// Leakless deadlocks on Windows, see go-rod/rod#853.
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	b.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(b.config.Headless).
		Set("no-first-run").
		Set("no-default-browser-check")

	// Must be set before Bin().
	if b.config.BrowserProfilePath != "" {
		b.launcher = b.launcher.UserDataDir(b.config.BrowserProfilePath)
		b.debugLog("Browser profile path: %s", b.config.BrowserProfilePath)
	}

	if chromeExists {
		b.launcher = b.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		b.debugLog("Chrome path: %s", chromePath)
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := b.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Opening in existing browser session") ||
			strings.Contains(errMsg, "ProcessSingleton") ||
			strings.Contains(errMsg, "SingletonLock") {
			fmt.Println(T("error_chrome_already_running"))
			return fmt.Errorf("browser profile is in use by another Chrome: %w", err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.browser = rod.New().ControlURL(url)
	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	fmt.Println(T("browser_launched"))
	return nil
}

// WaitForLogin opens the login page in a stealth tab and blocks until the
// operator presses Enter (continue) or ESC (abort).
func (b *Browser) WaitForLogin(ctx context.Context, prompt *Prompter) error {
	fmt.Printf(T("opening_for_login")+"\n", b.config.LoginURL)

	var err error
	b.page, err = stealth.Page(b.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}

	b.debugLog("Stealth mode enabled")

	if err := b.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1440,
		Height: 900,
	}); err != nil {
		b.debugLog("Warning: failed to set viewport: %v", err)
	}

	page := b.Page()
	if err := page.Navigate(b.config.LoginURL); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}

	fmt.Println()
	fmt.Println(T("login_required_header"))
	fmt.Println(T("login_instructions"))
	fmt.Println()
	fmt.Print(T("login_prompt"))

	confirmed, err := prompt.WaitForEnter(ctx)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if !confirmed {
		fmt.Println()
		fmt.Println(T("user_requested_exit"))
		return ErrLoginCancelled
	}

	fmt.Println()
	fmt.Println(T("login_complete"))
	return nil
}
