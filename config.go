package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinSafePollInterval is the slowest-safe interval in seconds under the
// collection API's published rate limit. It is advisory only.
const MinSafePollInterval = 1.8

type Config struct {
	EventID     string `yaml:"event_id"`
	APIBaseURL  string `yaml:"api_base_url"`
	CheckoutURL string `yaml:"checkout_url"`

	PollInterval         float64 `yaml:"poll_interval"`
	EarlyExit            bool    `yaml:"early_exit"`
	ParallelFetch        bool    `yaml:"parallel_fetch"`
	MaxWorkers           int     `yaml:"max_workers"`
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`
	HTTPTimeout          int     `yaml:"http_timeout"`

	SaveJSONResponse bool   `yaml:"save_json_response"`
	ArtifactDir      string `yaml:"artifact_dir"`

	// StartAt delays the first poll cycle, e.g. "2025-01-15 16:00" (UTC).
	StartAt string `yaml:"start_at"`

	BrowserProfilePath string  `yaml:"browser_profile_path"`
	LoginURL           string  `yaml:"login_url"`
	Headless           bool    `yaml:"headless"`
	PageSettleDelay    float64 `yaml:"page_settle_delay"`
	FrameWaitMs        int     `yaml:"frame_wait_ms"`

	DebugMode bool `yaml:"debug_mode"`

	Selectors SelectorConfig `yaml:"selectors"`

	// Secrets come from the environment, never from config.yaml.
	APIToken   string `yaml:"-"`
	WebhookURL string `yaml:"-"`
}

// LocatorConfig is the YAML form of one selector candidate.
type LocatorConfig struct {
	Strategy string `yaml:"strategy"`
	Pattern  string `yaml:"pattern"`
	Text     string `yaml:"text,omitempty"`
	WaitMs   int    `yaml:"wait_ms"`
}

type SelectorConfig struct {
	CheckAvailability []LocatorConfig `yaml:"check_availability"`
	WidgetFrame       []LocatorConfig `yaml:"widget_frame"`
	TimeSlot          []LocatorConfig `yaml:"time_slot"`
	Register          []LocatorConfig `yaml:"register"`

	DateButtonXPath  string `yaml:"date_button_xpath"`
	DateNumericXPath string `yaml:"date_numeric_xpath"`
	DateListItemCSS  string `yaml:"date_list_item_css"`
	DateCalendarCSS  string `yaml:"date_calendar_css"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		EventID:              "",
		APIBaseURL:           "https://www.eventbriteapi.com/v3",
		CheckoutURL:          "",
		PollInterval:         MinSafePollInterval,
		EarlyExit:            false,
		ParallelFetch:        true,
		MaxWorkers:           10,
		MaxRequestsPerSecond: 0,
		HTTPTimeout:          30,
		SaveJSONResponse:     true,
		ArtifactDir:          filepath.Join(userDataDir, "artifacts"),
		BrowserProfilePath:   filepath.Join(userDataDir, "browser-profile"),
		LoginURL:             "https://www.eventbrite.com",
		Headless:             false,
		PageSettleDelay:      3,
		FrameWaitMs:          10000,
		DebugMode:            false,
		Selectors: SelectorConfig{
			CheckAvailability: []LocatorConfig{
				{Strategy: "css", Pattern: "button[id*='check-availability']", WaitMs: 8000},
				{Strategy: "css", Pattern: "button.check-availability-btnbutton", WaitMs: 8000},
				{Strategy: "text", Pattern: "button", Text: "Check availability", WaitMs: 8000},
				{Strategy: "xpath", Pattern: "//button[contains(text(), 'Check availability')]", WaitMs: 8000},
			},
			WidgetFrame: []LocatorConfig{
				{Strategy: "css", Pattern: "iframe[id*='eventbrite-widget']", WaitMs: 10000},
			},
			TimeSlot: []LocatorConfig{
				{Strategy: "css", Pattern: "div[role='button'][class*='TimeSlot']", WaitMs: 8000},
				{Strategy: "css", Pattern: "div.TimeSlot-moduleslot_1Z-Kw", WaitMs: 8000},
				{Strategy: "css", Pattern: "div[class*='timeSlotContainer']", WaitMs: 8000},
			},
			Register: []LocatorConfig{
				{Strategy: "css", Pattern: "button[data-testid='eds-modal__primary-button']", WaitMs: 8000},
				{Strategy: "css", Pattern: "button[data-automation='eds-modalprimary-button']", WaitMs: 8000},
				{Strategy: "css", Pattern: "button.eds-btn--fill", WaitMs: 8000},
				{Strategy: "xpath", Pattern: "//button[contains(text(), 'Register')]", WaitMs: 8000},
			},
			DateButtonXPath:  "//button[not(@disabled) and string-length(normalize-space(text())) <= 2 and number(text()) = number(text())]",
			DateNumericXPath: "//*[string-length(normalize-space(text())) <= 2 and number(text()) = number(text()) and not(contains(@class, 'disabled'))]",
			DateListItemCSS:  "li",
			DateCalendarCSS:  "table button, [role='grid'] button, [class*='calendar'] button",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadSecrets reads API_TOKEN and DISCORD_WEBHOOK_URL, loading envFile
// first when it exists. A missing env file is not an error.
func (c *Config) LoadSecrets(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	c.APIToken = os.Getenv("API_TOKEN")
	c.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	return nil
}

func (c *Config) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("max_requests_per_second must not be negative")
	}
	if c.StartAt != "" {
		if _, err := ParseStartTime(c.StartAt); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveCheckoutURL returns checkout_url, or the public event page
// when it is not set.
func (c *Config) EffectiveCheckoutURL() string {
	if c.CheckoutURL != "" {
		return c.CheckoutURL
	}
	return fmt.Sprintf("https://www.eventbrite.com/e/%s", c.EventID)
}

func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval * float64(time.Second))
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.PageSettleDelay * float64(time.Second))
}

func (c *Config) FrameWait() time.Duration {
	return time.Duration(c.FrameWaitMs) * time.Millisecond
}

func (c *Config) HTTPTimeoutDuration() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HTTPTimeout) * time.Second
}
