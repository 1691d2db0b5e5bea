package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

type cliOptions struct {
	configPath    string
	envFile       string
	eventID       string
	interval      float64
	earlyExit     bool
	parallel      bool
	workers       int
	saveResponses bool
	startAt       string
	headless      bool
	debug         bool
}

func newFlagSet(opts *cliOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ticketwatch", pflag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to .env file with API_TOKEN and DISCORD_WEBHOOK_URL")
	fs.StringVar(&opts.eventID, "event", "", "Event ID to watch (overrides config)")
	fs.Float64Var(&opts.interval, "interval", MinSafePollInterval, "Seconds between poll cycles")
	fs.BoolVar(&opts.earlyExit, "early-exit", false, "Stop a cycle at the first page with available tickets")
	fs.BoolVar(&opts.parallel, "parallel", true, "Fetch pages 2..N concurrently")
	fs.IntVar(&opts.workers, "workers", 10, "Concurrent page fetchers per cycle")
	fs.BoolVar(&opts.saveResponses, "save-responses", true, "Write each cycle's raw API responses to the artifact dir")
	fs.StringVar(&opts.startAt, "start-at", "", "Wait until this UTC time before polling (e.g. 2025-01-15 16:00)")
	fs.BoolVar(&opts.headless, "headless", false, "Run the browser headless")
	fs.BoolVar(&opts.debug, "debug", false, "Enable detailed debug logging")
	return fs
}

// apply copies explicitly set flags over the loaded config.
func (o *cliOptions) apply(fs *pflag.FlagSet, config *Config) {
	if fs.Changed("event") {
		config.EventID = o.eventID
	}
	if fs.Changed("interval") {
		config.PollInterval = o.interval
	}
	if fs.Changed("early-exit") {
		config.EarlyExit = o.earlyExit
	}
	if fs.Changed("parallel") {
		config.ParallelFetch = o.parallel
	}
	if fs.Changed("workers") {
		config.MaxWorkers = o.workers
	}
	if fs.Changed("save-responses") {
		config.SaveJSONResponse = o.saveResponses
	}
	if fs.Changed("start-at") {
		config.StartAt = o.startAt
	}
	if fs.Changed("headless") {
		config.Headless = o.headless
	}
	if fs.Changed("debug") {
		config.DebugMode = o.debug
	}
}

func main() {
	var opts cliOptions
	fs := newFlagSet(&opts)
	fs.Parse(os.Args[1:])

	if err := InitLocale(); err != nil {
		log.Printf("Warning: Locale initialization failed, using default English: %v", err)
	}

	// Check for user data directory permission issues (after locale is loaded)
	checkUserDataDirPermissions()

	config, err := LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.LoadSecrets(opts.envFile); err != nil {
		log.Fatalf("Failed to load secrets: %v", err)
	}
	opts.apply(fs, config)

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	printBanner(config)

	os.Exit(run(config))
}

func printBanner(config *Config) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                Ticket Availability Watcher                ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf(T("banner_event")+"\n", config.EventID)
	fmt.Printf(T("banner_checkout_url")+"\n", config.EffectiveCheckoutURL())
	fmt.Printf(T("banner_profile")+"\n", config.BrowserProfilePath)

	mode := T("banner_mode_sequential")
	if config.ParallelFetch {
		mode = fmt.Sprintf(T("banner_mode_parallel"), config.MaxWorkers)
	}
	fmt.Printf(T("banner_interval")+"\n", config.PollInterval, mode)

	if config.PollInterval < MinSafePollInterval {
		fmt.Printf(T("warning_interval_below_safe")+"\n", config.PollInterval, MinSafePollInterval)
	}
	if config.EarlyExit {
		fmt.Println(T("banner_early_exit"))
	}
	if config.StartAt != "" {
		fmt.Printf(T("banner_start_at")+"\n", config.StartAt)
	}
	if config.APIToken == "" {
		fmt.Println(T("warning_no_api_token"))
	}
	if config.WebhookURL == "" {
		fmt.Println(T("warning_no_webhook"))
	}
	if config.DebugMode {
		fmt.Println("🔍 DEBUG MODE - Detailed logging enabled")
	}
	fmt.Println()
}

// run returns the process exit code so deferred cleanup always happens.
func run(config *Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := NewPrompter(os.Stdin)

	fmt.Println(T("step_browser_setup"))
	browser := NewBrowser(config)
	defer browser.Close()

	if err := browser.Launch(); err != nil {
		fmt.Printf(T("error_browser_setup")+"\n", err)
		return 1
	}

	if err := browser.WaitForLogin(ctx, prompt); err != nil {
		if errors.Is(err, ErrLoginCancelled) || ctx.Err() != nil {
			return 0
		}
		fmt.Printf(T("error_login")+"\n", err)
		return 1
	}

	artifacts := NewArtifactStore(config.ArtifactDir)
	fmt.Printf(T("artifacts_dir")+"\n", artifacts.Dir())

	fetcher := NewFetcher(config)
	fmt.Printf(T("fetch_endpoint")+"\n", fetcher.Endpoint())

	poller, err := NewPoller(config, NewAggregator(config, fetcher), artifacts)
	if err != nil {
		fmt.Printf(T("error_poller_setup")+"\n", err)
		return 1
	}

	notifier := NewWebhookNotifier(config.WebhookURL, fmt.Sprintf("ticketwatch · run %s", artifacts.RunID()))
	machine := NewCheckoutMachine(config, artifacts)

	fmt.Println()
	fmt.Println(T("step_polling"))
	session := NewSession(config, poller, notifier, machine, browser.Page(), browser, prompt)
	if err := session.Run(ctx); err != nil {
		if errors.Is(err, ErrRateLimited) {
			fmt.Printf(T("exit_rate_limited")+"\n", fetcher.Requests())
		} else {
			fmt.Printf(T("exit_error")+"\n", err)
		}
		return 1
	}

	return 0
}

// Store init error for later display (after locale is loaded)
var initUserDataDirError error

func init() {
	userDataDir := getUserDataDir()
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		initUserDataDirError = err
	}
}

func checkUserDataDirPermissions() {
	if initUserDataDirError != nil {
		userDataDir := getUserDataDir()
		if runtime.GOOS == "darwin" && strings.Contains(initUserDataDirError.Error(), "operation not permitted") {
			fmt.Println(T("error_macos_permission_header"))
			fmt.Printf(T("error_macos_permission_location")+"\n", userDataDir)
			fmt.Println(T("error_macos_permission_fix"))
			fmt.Println()
		}
		log.Printf(T("error_user_data_dir_warning"), initUserDataDirError)
	}
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./ticketwatch-data"
	}
	return filepath.Join(home, ".ticketwatch")
}
