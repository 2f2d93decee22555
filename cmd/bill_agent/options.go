package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/captcha"
	"github.com/jonathan/bill-agent/internal/config"
	"github.com/jonathan/bill-agent/internal/db"
	"github.com/jonathan/bill-agent/internal/download"
	"github.com/jonathan/bill-agent/internal/logging"
	"github.com/jonathan/bill-agent/internal/mahadiscom"
	"github.com/jonathan/bill-agent/internal/metrics"
	"github.com/jonathan/bill-agent/internal/mpwz"
	"github.com/jonathan/bill-agent/internal/observability"
	"github.com/jonathan/bill-agent/internal/recovery"
	"github.com/jonathan/bill-agent/internal/runner"
)

// sharedOptions holds the persistent flags of every site command.
type sharedOptions struct {
	configPath  string
	databaseURL string
	logLevel    string
	logFormat   string
	headless    bool
	verbose     bool
}

var opts sharedOptions

// resolveConfig loads the config file, applies the flags that were set, then the
// environment, then the defaults, and validates the result.
func resolveConfig(o sharedOptions, changed func(name string) bool) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Only override if the flag was explicitly set
	if changed("db-url") {
		cfg.DatabaseURL = o.databaseURL
	}
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if changed("headless") {
		headless := o.headless
		cfg.Browser.Headless = &headless
	}
	if o.verbose && !changed("log-level") {
		cfg.LogLevel = "debug"
	}

	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app is the wiring shared by the site commands.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	db      *db.DB
	metrics *metrics.Metrics
	runner  *runner.Runner
	printer *observability.Printer
	verbose bool
}

func newApp(ctx context.Context, cfg config.Config, verbose bool) (*app, error) {
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required (use --db-url, the config file or DATABASE_URL)")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m := metrics.New()
	launcher := browser.NewChromeLauncher(browserConfig(cfg.Browser), log)
	cascade := recovery.NewCascade(browser.PkillKiller{}, log)
	r := runner.New(
		runner.Config{MaxRestarts: cfg.RestartLimit()},
		launcher,
		cascade,
		log,
		runner.NewLedger(database, log),
		m,
	)

	return &app{
		cfg:     cfg,
		log:     log,
		db:      database,
		metrics: m,
		runner:  r,
		printer: observability.NewPrinter(os.Stdout),
		verbose: verbose,
	}, nil
}

// close releases the database and exports metrics when a textfile is configured.
func (a *app) close() {
	if a.cfg.MetricsTextfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.log.WithError(err).Warn("Failed to write metrics textfile")
		}
	}
	a.db.Close()
}

// run processes one site and prints its summary.
func (a *app) run(ctx context.Context, site runner.Site) error {
	if err := os.MkdirAll(site.DownloadDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	summary, err := a.runner.Run(ctx, site)
	if summary != nil {
		a.metrics.ObserveRunFinished(site.Name(), summary)
		a.printer.PrintSummary(summary)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", site.Name(), err)
	}
	return nil
}

func (a *app) mhSite(recordID int64) (*mahadiscom.Site, error) {
	solver, err := buildSolver(a.cfg.Captcha, a.log)
	if err != nil {
		return nil, err
	}
	mh := a.cfg.MH
	log := logging.ForSite(a.log, mahadiscom.SiteName)

	classifier := alerts.NewClassifier(mh.AlertRules, mh.AlertWait.D(), log)
	engine := mahadiscom.NewEngine(mahadiscom.EngineConfig{
		LoginURL:         mh.LoginURL,
		MaxAttempts:      mh.MaxAttempts,
		CaptchaImagePath: mh.CaptchaImagePath,
		Timings:          mhTimings(mh),
	}, solver, classifier, log)
	engine.OnAttempt = func(att mahadiscom.Attempt) {
		a.metrics.ObserveAttempt(mahadiscom.SiteName, att.Result())
		if a.verbose {
			a.printer.PrintAttempt(att)
		}
	}

	fetcher := mahadiscom.NewFetcher(mahadiscom.FetcherConfig{
		DownloadDir:   mh.DownloadDir,
		Timings:       mhTimings(mh),
		PrintToPDF:    mh.PrintToPDF,
		DebugPagePath: mh.DebugPagePath,
		Poller:        poller(mh.DownloadDir, a.cfg.Download),
	}, log)

	site := mahadiscom.NewSite(a.db, engine, fetcher, mh.DownloadDir, log)
	site.RecordID = recordID
	return site, nil
}

func (a *app) mpSite() *mpwz.Site {
	mp := a.cfg.MP
	log := logging.ForSite(a.log, mpwz.SiteName)
	classifier := alerts.NewClassifier(mp.AlertRules, mp.AlertWait.D(), log)
	return mpwz.NewSite(mpwz.Config{
		URL:           mp.URL,
		DownloadDir:   mp.DownloadDir,
		DebugPagePath: mp.DebugPagePath,
		Timings: mpwz.Timings{
			PageLoad:     mp.PageLoad.D(),
			ElementWait:  mp.ElementWait.D(),
			SubmitSettle: mp.Settle.D(),
			BillSettle:   mp.Settle.D(),
		},
		Poller: poller(mp.DownloadDir, a.cfg.Download),
	}, a.db, classifier, log)
}

func browserConfig(b config.BrowserConfig) browser.Config {
	return browser.Config{
		ExecPath:      b.ExecPath,
		Headless:      b.IsHeadless(),
		WindowWidth:   b.WindowWidth,
		WindowHeight:  b.WindowHeight,
		ActionTimeout: b.ActionTimeout.D(),
	}
}

// mhTimings overlays the configured waits on the portal defaults.
func mhTimings(mh config.MHConfig) mahadiscom.Timings {
	t := mahadiscom.DefaultTimings()
	override(&t.ElementWait, mh.ElementWait)
	override(&t.DetailsWait, mh.DetailsWait)
	override(&t.PrintWait, mh.PrintWait)
	override(&t.DownloadSettle, mh.DownloadSettle)
	return t
}

func override(dst *time.Duration, v config.Duration) {
	if v > 0 {
		*dst = v.D()
	}
}

func poller(dir string, d config.DownloadConfig) *download.Poller {
	p := download.NewPoller(dir)
	override(&p.Timeout, d.Timeout)
	override(&p.Interval, d.Interval)
	return p
}

// buildSolver returns the CAPTCHA solver selected by captcha.solver.
func buildSolver(c config.CaptchaConfig, log logrus.FieldLogger) (captcha.Solver, error) {
	switch c.Solver {
	case "", "tesseract":
		s := captcha.NewTesseractSolver(c.TesseractPath)
		s.Lang = c.Language
		return s, nil
	case "api":
		s, err := captcha.NewAPISolver(captcha.APIConfig{
			APIKey:       c.APIKey,
			BaseURL:      c.APIBaseURL,
			PollInterval: c.PollInterval.D(),
			MaxPolls:     c.MaxPolls,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create CAPTCHA solver: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown CAPTCHA solver %q", c.Solver)
	}
}
