package mahadiscom

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/captcha"
)

const (
	// DefaultMaxAttempts is the CAPTCHA budget for one record.
	DefaultMaxAttempts = 10
	// DefaultCaptchaImagePath is overwritten on every attempt.
	DefaultCaptchaImagePath = "captcha.png"
)

var (
	// ErrMissingCredentials is returned for a record without a login name or password.
	ErrMissingCredentials = errors.New("missing username or password")
	// ErrAttemptsExhausted means every CAPTCHA attempt for a record failed.
	ErrAttemptsExhausted = errors.New("captcha attempts exhausted")
)

// Attempt is one CAPTCHA solve and submit.
type Attempt struct {
	Index int
	// Text is what the solver read; empty when extraction failed.
	Text    string
	Outcome alerts.Outcome
	// Alert is the dismissed dialog text, if any.
	Alert string
	// Err is set when the attempt failed before a dialog could be classified.
	Err error
}

// Succeeded reports whether the portal accepted the login.
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.Outcome == alerts.LoginSucceeded
}

// Result labels the attempt for logs and metrics.
func (a Attempt) Result() string {
	switch {
	case errors.Is(a.Err, captcha.ErrEmptyText):
		return "extraction-failed"
	case a.Err != nil:
		return "automation-error"
	default:
		return a.Outcome.String()
	}
}

// LoginError reports a failed login for one record.
type LoginError struct {
	Stage    string
	Attempts int
	Cause    error
}

func (e *LoginError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("login failed at %s after %d attempts: %v", e.Stage, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("login failed at %s: %v", e.Stage, e.Cause)
}

func (e *LoginError) Unwrap() error {
	return e.Cause
}

// RequiresRestart is true when the CAPTCHA budget ran out, which points at the portal rather than the record.
func (e *LoginError) RequiresRestart() bool {
	return errors.Is(e.Cause, ErrAttemptsExhausted)
}

// EngineConfig configures the login engine.
type EngineConfig struct {
	LoginURL         string
	MaxAttempts      int
	CaptchaImagePath string
	Timings          Timings
}

// DefaultEngineConfig returns the portal defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LoginURL:         DefaultLoginURL,
		MaxAttempts:      DefaultMaxAttempts,
		CaptchaImagePath: DefaultCaptchaImagePath,
		Timings:          DefaultTimings(),
	}
}

// Engine logs in to the portal, retrying the CAPTCHA within a fixed budget.
type Engine struct {
	cfg        EngineConfig
	solver     captcha.Solver
	classifier *alerts.Classifier
	log        logrus.FieldLogger

	// OnAttempt, when set, observes every finished attempt.
	OnAttempt func(Attempt)
}

// NewEngine creates a login engine.
func NewEngine(cfg EngineConfig, solver captcha.Solver, classifier *alerts.Classifier, log logrus.FieldLogger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{cfg: cfg, solver: solver, classifier: classifier, log: log}
}

// WithLogger returns a copy of e that logs to log.
func (e *Engine) WithLogger(log logrus.FieldLogger) *Engine {
	c := *e
	c.log = log
	return &c
}

// Login opens the login form, enters the credentials once, then solves and submits
// the CAPTCHA until the portal accepts it or the budget is spent.
func (e *Engine) Login(ctx context.Context, s browser.Session, username, password string) ([]Attempt, error) {
	if username == "" || password == "" {
		return nil, &LoginError{Stage: "validate", Cause: ErrMissingCredentials}
	}

	if err := e.openForm(ctx, s, username, password); err != nil {
		return nil, &LoginError{Stage: "open form", Cause: err}
	}

	attempts := make([]Attempt, 0, e.cfg.MaxAttempts)
	for i := 1; i <= e.cfg.MaxAttempts; i++ {
		att := e.attempt(ctx, s, i)
		attempts = append(attempts, att)
		e.logAttempt(att)
		if e.OnAttempt != nil {
			e.OnAttempt(att)
		}

		if att.Succeeded() {
			e.log.WithField("attempt", i).Info("login successful")
			return attempts, nil
		}
		if err := ctx.Err(); err != nil {
			return attempts, &LoginError{Stage: "captcha", Attempts: i, Cause: err}
		}
		if i < e.cfg.MaxAttempts {
			e.refreshCaptcha(ctx, s)
		}
	}

	e.log.WithField("attempts", e.cfg.MaxAttempts).Error("max captcha attempts exceeded")
	return attempts, &LoginError{Stage: "captcha", Attempts: e.cfg.MaxAttempts, Cause: ErrAttemptsExhausted}
}

func (e *Engine) openForm(ctx context.Context, s browser.Session, username, password string) error {
	t := e.cfg.Timings
	if err := s.Navigate(ctx, e.cfg.LoginURL); err != nil {
		return err
	}
	if err := s.Click(ctx, LanguageMenu, t.ElementWait); err != nil {
		return err
	}
	if err := s.Click(ctx, EnglishOption, t.ElementWait); err != nil {
		return err
	}
	if err := s.Click(ctx, LoginLink, t.ElementWait); err != nil {
		return err
	}
	if err := sleep(ctx, t.LoginSettle); err != nil {
		return err
	}
	if err := s.Type(ctx, UsernameInput, username, t.ElementWait); err != nil {
		return err
	}
	if err := s.Type(ctx, PasswordInput, password, t.ElementWait); err != nil {
		return err
	}
	e.log.Info("entered login details")
	return nil
}

func (e *Engine) attempt(ctx context.Context, s browser.Session, index int) Attempt {
	att := Attempt{Index: index, Outcome: alerts.Unexpected}
	wait := e.cfg.Timings.ElementWait

	png, err := s.Screenshot(ctx, CaptchaImage, wait)
	if err != nil {
		att.Err = fmt.Errorf("failed to capture captcha: %w", err)
		return att
	}
	if e.cfg.CaptchaImagePath != "" {
		if err := os.WriteFile(e.cfg.CaptchaImagePath, png, 0o644); err != nil {
			e.log.WithError(err).Warn("failed to write captcha image")
		}
	}

	text, err := e.solver.Solve(ctx, png)
	if err == nil && text == "" {
		err = captcha.ErrEmptyText
	}
	if err != nil {
		att.Err = err
		return att
	}
	att.Text = text

	if err := s.Type(ctx, CaptchaInput, text, wait); err != nil {
		att.Err = fmt.Errorf("failed to enter captcha: %w", err)
		return att
	}
	if err := s.Click(ctx, LoginButton, wait); err != nil {
		att.Err = fmt.Errorf("failed to submit login: %w", err)
		return att
	}

	res, err := e.classifier.Inspect(ctx, s)
	att.Outcome, att.Alert = res.Outcome, res.Text
	if err != nil {
		att.Err = err
	}
	return att
}

// refreshCaptcha requests a new image in place; the typed credentials survive it.
// Failures only cost the next attempt, so they are logged and not returned.
func (e *Engine) refreshCaptcha(ctx context.Context, s browser.Session) {
	if text, ok, err := alerts.Dismiss(ctx, s, 0); err != nil {
		e.log.WithError(err).Warn("failed to dismiss alert before captcha refresh")
	} else if ok {
		e.log.WithField("alert", text).Warn("unexpected alert handled")
	}

	if err := s.Click(ctx, CaptchaRefresh, e.cfg.Timings.ElementWait); err != nil {
		e.log.WithError(err).Error("failed to refresh captcha")
		return
	}
	if err := sleep(ctx, e.cfg.Timings.RefreshSettle); err != nil {
		return
	}
	e.log.Debug("captcha refreshed")
}

func (e *Engine) logAttempt(att Attempt) {
	entry := e.log.WithFields(logrus.Fields{
		"attempt": att.Index,
		"result":  att.Result(),
	})
	if att.Alert != "" {
		entry = entry.WithField("alert", att.Alert)
	}
	switch {
	case att.Succeeded():
		entry.WithField("captcha", att.Text).Debug("captcha accepted")
	case att.Err != nil:
		entry.WithError(att.Err).Warn("captcha attempt failed")
	default:
		entry.WithField("captcha", att.Text).Warn("login rejected, retrying")
	}
}
