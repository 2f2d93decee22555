// Package config provides configuration loading and validation for the CLI.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/schemas"
	configschema "github.com/jonathan/bill-agent/schemas"
)

// Duration is a time.Duration written as a Go duration string ("5s", "2m") in JSON.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values come from Defaults.
type Config struct {
	DatabaseURL     string `json:"database_url,omitempty"`
	LogLevel        string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat       string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`
	MaxRestarts     *int   `json:"max_restarts,omitempty" validate:"omitempty,gte=0"`
	MetricsTextfile string `json:"metrics_textfile,omitempty"`

	Browser  BrowserConfig  `json:"browser"`
	Captcha  CaptchaConfig  `json:"captcha"`
	Download DownloadConfig `json:"download"`
	MH       MHConfig       `json:"mh"`
	MP       MPConfig       `json:"mp"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	ExecPath string `json:"exec_path,omitempty"`
	// Headless is a pointer so an explicit false survives the merge with defaults.
	Headless      *bool    `json:"headless,omitempty"`
	WindowWidth   int      `json:"window_width,omitempty" validate:"omitempty,min=320"`
	WindowHeight  int      `json:"window_height,omitempty" validate:"omitempty,min=240"`
	ActionTimeout Duration `json:"action_timeout,omitempty" validate:"gte=0"`
}

// CaptchaConfig selects and configures the CAPTCHA solver.
type CaptchaConfig struct {
	Solver        string   `json:"solver,omitempty" validate:"omitempty,oneof=tesseract api"`
	TesseractPath string   `json:"tesseract_path,omitempty"`
	Language      string   `json:"language,omitempty"`
	APIKey        string   `json:"api_key,omitempty"`
	APIBaseURL    string   `json:"api_base_url,omitempty" validate:"omitempty,url"`
	PollInterval  Duration `json:"poll_interval,omitempty" validate:"gte=0"`
	MaxPolls      int      `json:"max_polls,omitempty" validate:"gte=0"`
}

// DownloadConfig bounds the wait for a completed PDF.
type DownloadConfig struct {
	Timeout  Duration `json:"timeout,omitempty" validate:"gte=0"`
	Interval Duration `json:"interval,omitempty" validate:"gte=0"`
}

// MHConfig configures the Maharashtra portal.
type MHConfig struct {
	LoginURL         string        `json:"login_url,omitempty" validate:"omitempty,url"`
	DownloadDir      string        `json:"download_dir,omitempty"`
	MaxAttempts      int           `json:"max_attempts,omitempty" validate:"gte=0"`
	AlertWait        Duration      `json:"alert_wait,omitempty" validate:"gte=0"`
	CaptchaImagePath string        `json:"captcha_image_path,omitempty"`
	DebugPagePath    string        `json:"debug_page_path,omitempty"`
	PrintToPDF       bool          `json:"print_to_pdf,omitempty"`
	ElementWait      Duration      `json:"element_wait,omitempty" validate:"gte=0"`
	DetailsWait      Duration      `json:"details_wait,omitempty" validate:"gte=0"`
	PrintWait        Duration      `json:"print_wait,omitempty" validate:"gte=0"`
	DownloadSettle   Duration      `json:"download_settle,omitempty" validate:"gte=0"`
	AlertRules       []alerts.Rule `json:"alert_rules,omitempty" validate:"dive"`
}

// MPConfig configures the Madhya Pradesh portal.
type MPConfig struct {
	URL           string        `json:"url,omitempty" validate:"omitempty,url"`
	DownloadDir   string        `json:"download_dir,omitempty"`
	AlertWait     Duration      `json:"alert_wait,omitempty" validate:"gte=0"`
	DebugPagePath string        `json:"debug_page_path,omitempty"`
	PageLoad      Duration      `json:"page_load,omitempty" validate:"gte=0"`
	ElementWait   Duration      `json:"element_wait,omitempty" validate:"gte=0"`
	Settle        Duration      `json:"settle,omitempty" validate:"gte=0"`
	AlertRules    []alerts.Rule `json:"alert_rules,omitempty" validate:"dive"`
}

// Defaults returns the settings used when neither the file nor the flags set a value.
func Defaults() Config {
	headless := true
	maxRestarts := 5
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		MaxRestarts: &maxRestarts,
		Browser: BrowserConfig{
			Headless:      &headless,
			WindowWidth:   1366,
			WindowHeight:  900,
			ActionTimeout: Duration(30 * time.Second),
		},
		Captcha: CaptchaConfig{
			Solver:        "tesseract",
			TesseractPath: "tesseract",
			APIBaseURL:    "https://api.solvecaptcha.com",
			PollInterval:  Duration(2 * time.Second),
			MaxPolls:      30,
		},
		Download: DownloadConfig{
			Timeout:  Duration(120 * time.Second),
			Interval: Duration(time.Second),
		},
		MH: MHConfig{
			LoginURL:         "https://wss.mahadiscom.in/wss/wss",
			DownloadDir:      filepath.Join("bills", "mh"),
			MaxAttempts:      10,
			AlertWait:        Duration(5 * time.Second),
			CaptchaImagePath: "captcha.png",
			DebugPagePath:    "debug_page_source.html",
			ElementWait:      Duration(10 * time.Second),
			DetailsWait:      Duration(20 * time.Second),
			PrintWait:        Duration(15 * time.Second),
			DownloadSettle:   Duration(5 * time.Second),
			AlertRules:       alerts.LoginRules(),
		},
		MP: MPConfig{
			URL:           "https://mpwzservices.mpwin.co.in/westdiscom/home",
			DownloadDir:   filepath.Join("bills", "mp"),
			AlertWait:     Duration(5 * time.Second),
			DebugPagePath: "debug_page_source_mp.html",
			PageLoad:      Duration(30 * time.Second),
			ElementWait:   Duration(30 * time.Second),
			Settle:        Duration(5 * time.Second),
			AlertRules:    alerts.IVRSRules(),
		},
	}
}

// LoadConfig loads configuration from a JSON file.
// The raw file is checked against the embedded schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: %s is not valid JSON", path)
	}
	if err := schemas.ValidateBytes("config.schema.json", configschema.Config, data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.Captcha.Solver == "api" && c.Captcha.APIKey == "" {
		return fmt.Errorf("config error: 'captcha.api_key' is required when solver is 'api'")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.LogLevel, defaults.LogLevel)
	str(&result.LogFormat, defaults.LogFormat)
	str(&result.MetricsTextfile, defaults.MetricsTextfile)
	if result.MaxRestarts == nil {
		result.MaxRestarts = defaults.MaxRestarts
	}

	b := &result.Browser
	str(&b.ExecPath, defaults.Browser.ExecPath)
	if b.Headless == nil {
		b.Headless = defaults.Browser.Headless
	}
	num(&b.WindowWidth, defaults.Browser.WindowWidth)
	num(&b.WindowHeight, defaults.Browser.WindowHeight)
	dur(&b.ActionTimeout, defaults.Browser.ActionTimeout)

	cp := &result.Captcha
	str(&cp.Solver, defaults.Captcha.Solver)
	str(&cp.TesseractPath, defaults.Captcha.TesseractPath)
	str(&cp.Language, defaults.Captcha.Language)
	str(&cp.APIKey, defaults.Captcha.APIKey)
	str(&cp.APIBaseURL, defaults.Captcha.APIBaseURL)
	dur(&cp.PollInterval, defaults.Captcha.PollInterval)
	num(&cp.MaxPolls, defaults.Captcha.MaxPolls)

	dur(&result.Download.Timeout, defaults.Download.Timeout)
	dur(&result.Download.Interval, defaults.Download.Interval)

	mh := &result.MH
	str(&mh.LoginURL, defaults.MH.LoginURL)
	str(&mh.DownloadDir, defaults.MH.DownloadDir)
	num(&mh.MaxAttempts, defaults.MH.MaxAttempts)
	dur(&mh.AlertWait, defaults.MH.AlertWait)
	str(&mh.CaptchaImagePath, defaults.MH.CaptchaImagePath)
	str(&mh.DebugPagePath, defaults.MH.DebugPagePath)
	mh.PrintToPDF = mh.PrintToPDF || defaults.MH.PrintToPDF
	dur(&mh.ElementWait, defaults.MH.ElementWait)
	dur(&mh.DetailsWait, defaults.MH.DetailsWait)
	dur(&mh.PrintWait, defaults.MH.PrintWait)
	dur(&mh.DownloadSettle, defaults.MH.DownloadSettle)
	if len(mh.AlertRules) == 0 {
		mh.AlertRules = defaults.MH.AlertRules
	}

	mp := &result.MP
	str(&mp.URL, defaults.MP.URL)
	str(&mp.DownloadDir, defaults.MP.DownloadDir)
	dur(&mp.AlertWait, defaults.MP.AlertWait)
	str(&mp.DebugPagePath, defaults.MP.DebugPagePath)
	dur(&mp.PageLoad, defaults.MP.PageLoad)
	dur(&mp.ElementWait, defaults.MP.ElementWait)
	dur(&mp.Settle, defaults.MP.Settle)
	if len(mp.AlertRules) == 0 {
		mp.AlertRules = defaults.MP.AlertRules
	}

	return result
}

// RestartLimit returns the restart bound; 0 means unlimited.
func (c Config) RestartLimit() int {
	if c.MaxRestarts == nil {
		return 0
	}
	return *c.MaxRestarts
}

// IsHeadless reports the effective headless setting; unset means headless.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

func str(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func num(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func dur(v *Duration, def Duration) {
	if *v == 0 {
		*v = def
	}
}
