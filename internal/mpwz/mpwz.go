// Package mpwz fetches bills from the MP Paschim Kshetra portal by IVRS number.
package mpwz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/download"
	"github.com/jonathan/bill-agent/internal/runner"
)

const (
	// SiteName identifies the portal in logs, metrics and the run ledger.
	SiteName = "mp"
	// DefaultURL is the bill lookup page.
	DefaultURL = "https://mpwzservices.mpwin.co.in/westdiscom/home"
	// DefaultDebugPagePath receives the page markup when a wait times out.
	DefaultDebugPagePath = "debug_page_source_mp.html"
)

var (
	IVRSInput      = browser.XPath("//input[contains(@class, 'form-control')]")
	SubmitButton   = browser.XPath("//input[contains(@class, 'btn-warning')]")
	FullBillButton = browser.XPath("//button[contains(text(), 'View Full Bill (English)')]")
)

var (
	// ErrInvalidIVRS means the portal rejected the IVRS number.
	ErrInvalidIVRS = errors.New("invalid IVRS number")
	// ErrNoIVRSNumbers is returned when the store has nothing to process.
	ErrNoIVRSNumbers = errors.New("no IVRS numbers found")
)

// AlertError reports a dialog the portal should not have shown.
type AlertError struct {
	Text string
}

func (e *AlertError) Error() string {
	return fmt.Sprintf("unexpected alert: %s", e.Text)
}

// RequiresRestart is true: an unknown dialog leaves the portal in an unknown state.
func (e *AlertError) RequiresRestart() bool {
	return true
}

// RecordError reports a failure for one IVRS number.
type RecordError struct {
	IVRS  string
	Stage string
	Cause error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("IVRS %s: %s: %v", e.IVRS, e.Stage, e.Cause)
}

func (e *RecordError) Unwrap() error {
	return e.Cause
}

// Timings bounds the waits of the IVRS flow.
type Timings struct {
	PageLoad     time.Duration
	ElementWait  time.Duration
	SubmitSettle time.Duration
	BillSettle   time.Duration
}

// DefaultTimings returns the waits the portal needs on a typical connection.
func DefaultTimings() Timings {
	return Timings{
		PageLoad:     30 * time.Second,
		ElementWait:  30 * time.Second,
		SubmitSettle: 5 * time.Second,
		BillSettle:   5 * time.Second,
	}
}

// IVRSStore supplies the IVRS numbers to fetch.
type IVRSStore interface {
	ListIVRSNumbers(ctx context.Context) ([]string, error)
}

// Config configures the site.
type Config struct {
	URL           string
	DownloadDir   string
	DebugPagePath string
	Timings       Timings
	Poller        *download.Poller
}

// Site downloads the full bill of every stored IVRS number.
type Site struct {
	cfg        Config
	store      IVRSStore
	classifier *alerts.Classifier
	poller     *download.Poller
	log        logrus.FieldLogger
}

// NewSite creates the portal site. classifier should carry alerts.IVRSRules or an equivalent table.
func NewSite(cfg Config, store IVRSStore, classifier *alerts.Classifier, log logrus.FieldLogger) *Site {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.DebugPagePath == "" {
		cfg.DebugPagePath = DefaultDebugPagePath
	}
	poller := cfg.Poller
	if poller == nil {
		poller = download.NewPoller(cfg.DownloadDir)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Site{cfg: cfg, store: store, classifier: classifier, poller: poller, log: log}
}

func (s *Site) Name() string        { return SiteName }
func (s *Site) DownloadDir() string { return s.cfg.DownloadDir }

// Tasks reads the IVRS numbers. An empty list is an error.
func (s *Site) Tasks(ctx context.Context) ([]runner.Task, error) {
	numbers, err := s.store.ListIVRSNumbers(ctx)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return nil, ErrNoIVRSNumbers
	}
	tasks := make([]runner.Task, 0, len(numbers))
	for _, n := range numbers {
		tasks = append(tasks, runner.Task{
			Key: n,
			Run: func(ctx context.Context, sess browser.Session) (string, error) {
				return s.Fetch(ctx, sess, n)
			},
		})
	}
	return tasks, nil
}

// Fetch looks up one IVRS number and stores its bill as IVRS-{n}.pdf.
func (s *Site) Fetch(ctx context.Context, sess browser.Session, ivrs string) (string, error) {
	log := s.log.WithField("record_id", ivrs)
	t := s.cfg.Timings

	before, err := download.Take(s.cfg.DownloadDir)
	if err != nil {
		return "", &RecordError{IVRS: ivrs, Stage: "snapshot downloads", Cause: err}
	}

	if err := sess.Navigate(ctx, s.cfg.URL); err != nil {
		return "", s.fail(ctx, sess, ivrs, "navigate", err)
	}
	if err := sess.WaitReady(ctx, t.PageLoad); err != nil {
		return "", s.fail(ctx, sess, ivrs, "page load", err)
	}
	if err := sess.Type(ctx, IVRSInput, ivrs, t.ElementWait); err != nil {
		return "", s.fail(ctx, sess, ivrs, "enter IVRS", err)
	}
	log.Info("entered IVRS number")

	if err := sess.Click(ctx, SubmitButton, t.ElementWait); err != nil {
		return "", s.fail(ctx, sess, ivrs, "submit", err)
	}
	if err := sleep(ctx, t.SubmitSettle); err != nil {
		return "", &RecordError{IVRS: ivrs, Stage: "submit", Cause: err}
	}

	res, err := s.classifier.Inspect(ctx, sess)
	if err != nil {
		return "", &RecordError{IVRS: ivrs, Stage: "alert", Cause: err}
	}
	switch res.Outcome {
	case alerts.LoginSucceeded:
	case alerts.InvalidAccount:
		return "", &RecordError{IVRS: ivrs, Stage: "lookup", Cause: fmt.Errorf("%w: %s", ErrInvalidIVRS, res.Text)}
	default:
		return "", &RecordError{IVRS: ivrs, Stage: "lookup", Cause: &AlertError{Text: res.Text}}
	}

	if err := sess.Click(ctx, FullBillButton, t.ElementWait); err != nil {
		return "", s.fail(ctx, sess, ivrs, "open full bill", err)
	}
	if err := sleep(ctx, t.BillSettle); err != nil {
		return "", &RecordError{IVRS: ivrs, Stage: "download", Cause: err}
	}

	path, err := s.poller.Wait(ctx, before)
	if err != nil {
		return "", s.fail(ctx, sess, ivrs, "download", err)
	}
	final, err := download.RenameUnique(path, s.cfg.DownloadDir, download.IVRSName(ivrs))
	if err != nil {
		return "", &RecordError{IVRS: ivrs, Stage: "rename", Cause: err}
	}
	log.WithField("path", final).Info("bill downloaded and renamed")
	return final, nil
}

func (s *Site) fail(ctx context.Context, sess browser.Session, ivrs, stage string, err error) error {
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, download.ErrIncomplete) {
		if dumpErr := browser.DumpPageSource(ctx, sess, s.cfg.DebugPagePath); dumpErr != nil {
			s.log.WithError(dumpErr).Warn("failed to save page source")
		}
	}
	return &RecordError{IVRS: ivrs, Stage: stage, Cause: err}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
