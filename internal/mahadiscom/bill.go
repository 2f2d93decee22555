package mahadiscom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/download"
)

// DefaultDebugPagePath receives the page markup when a wait times out.
const DefaultDebugPagePath = "debug_page_source.html"

// restoreTimeout bounds window cleanup, which runs even after ctx is cancelled.
const restoreTimeout = 30 * time.Second

// ErrConsumerIdentity means the bill page did not show a consumer name and number.
var ErrConsumerIdentity = errors.New("consumer details not found")

// Bill is a downloaded and renamed bill.
type Bill struct {
	Consumer Consumer
	Path     string
}

// BillError reports a failure in the bill pipeline.
type BillError struct {
	Stage string
	Cause error
}

func (e *BillError) Error() string {
	return fmt.Sprintf("bill %s: %v", e.Stage, e.Cause)
}

func (e *BillError) Unwrap() error {
	return e.Cause
}

// FetcherConfig configures the bill pipeline.
type FetcherConfig struct {
	DownloadDir string
	Timings     Timings
	// PrintToPDF saves the printable page through the browser instead of relying on
	// the kiosk print dialog, which headless Chrome does not show.
	PrintToPDF    bool
	DebugPagePath string
	Poller        *download.Poller
}

// Fetcher opens the bill of a logged-in session and stores it in the download directory.
type Fetcher struct {
	cfg    FetcherConfig
	poller *download.Poller
	log    logrus.FieldLogger
}

// NewFetcher creates a fetcher. A nil Poller polls DownloadDir with the default timeout.
func NewFetcher(cfg FetcherConfig, log logrus.FieldLogger) *Fetcher {
	poller := cfg.Poller
	if poller == nil {
		poller = download.NewPoller(cfg.DownloadDir)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fetcher{cfg: cfg, poller: poller, log: log}
}

// WithLogger returns a copy of f that logs to log.
func (f *Fetcher) WithLogger(log logrus.FieldLogger) *Fetcher {
	c := *f
	c.log = log
	return &c
}

// Fetch runs the bill pipeline. Whatever happens, windows it opened are closed and the
// session is left on its first window.
func (f *Fetcher) Fetch(ctx context.Context, s browser.Session) (*Bill, error) {
	initial, err := s.WindowHandles(ctx)
	if err != nil {
		return nil, &BillError{Stage: "list windows", Cause: err}
	}
	if len(initial) == 0 {
		return nil, &BillError{Stage: "list windows", Cause: browser.ErrNoWindow}
	}
	defer f.restoreWindows(ctx, s, initial)

	before, err := download.Take(f.cfg.DownloadDir)
	if err != nil {
		return nil, &BillError{Stage: "snapshot downloads", Cause: err}
	}

	t := f.cfg.Timings
	if err := f.clickToNewWindow(ctx, s, ViewBillButton, t.ElementWait); err != nil {
		return nil, f.fail(ctx, s, "open bill", err)
	}
	f.log.Info("opened bill window")

	consumer, err := f.consumer(ctx, s)
	if err != nil {
		return nil, f.fail(ctx, s, "consumer details", err)
	}
	f.log.WithFields(logrus.Fields{
		"consumer_name":   consumer.Name,
		"consumer_number": consumer.Number,
	}).Info("found consumer details")

	if err := f.clickToNewWindow(ctx, s, PrintableVersion, t.ElementWait); err != nil {
		return nil, f.fail(ctx, s, "open printable version", err)
	}
	if err := s.Click(ctx, PrintDownload, t.PrintWait); err != nil {
		return nil, f.fail(ctx, s, "print", err)
	}
	if f.cfg.PrintToPDF {
		if err := f.savePDF(ctx, s); err != nil {
			return nil, f.fail(ctx, s, "print to pdf", err)
		}
	}
	if err := sleep(ctx, t.DownloadSettle); err != nil {
		return nil, &BillError{Stage: "download", Cause: err}
	}

	path, err := f.poller.Wait(ctx, before)
	if err != nil {
		return nil, f.fail(ctx, s, "download", err)
	}
	final, err := download.RenameUnique(path, f.cfg.DownloadDir, download.ArtifactName(consumer.Name, consumer.Number))
	if err != nil {
		return nil, &BillError{Stage: "rename", Cause: err}
	}
	f.log.WithField("path", final).Info("bill downloaded")
	return &Bill{Consumer: consumer, Path: final}, nil
}

func (f *Fetcher) consumer(ctx context.Context, s browser.Session) (Consumer, error) {
	for _, cell := range []browser.Locator{ConsumerNumberCell, ConsumerNameCell} {
		if err := s.WaitVisible(ctx, cell, f.cfg.Timings.DetailsWait); err != nil {
			return Consumer{}, fmt.Errorf("%w: %w", ErrConsumerIdentity, err)
		}
	}
	html, err := s.PageSource(ctx)
	if err != nil {
		return Consumer{}, err
	}
	c, err := ParseConsumer(html)
	if err != nil {
		return Consumer{}, err
	}
	if !c.Complete() {
		return c, fmt.Errorf("%w: name=%q number=%q", ErrConsumerIdentity, c.Name, c.Number)
	}
	return c, nil
}

// clickToNewWindow clicks loc and switches to the newest window the click opened.
func (f *Fetcher) clickToNewWindow(ctx context.Context, s browser.Session, loc browser.Locator, timeout time.Duration) error {
	known, err := s.WindowHandles(ctx)
	if err != nil {
		return err
	}
	if err := s.Click(ctx, loc, timeout); err != nil {
		return err
	}
	handle, err := waitNewWindow(ctx, s, known, f.cfg.Timings.WindowWait)
	if err != nil {
		return err
	}
	return s.SwitchWindow(ctx, handle)
}

// waitNewWindow polls until a handle outside known exists and returns the most recently added one.
func waitNewWindow(ctx context.Context, s browser.Session, known []string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		handles, err := s.WindowHandles(ctx)
		if err != nil {
			return "", err
		}
		for i := len(handles) - 1; i >= 0; i-- {
			if !slices.Contains(known, handles[i]) {
				return handles[i], nil
			}
		}
		if !time.Now().Before(deadline) {
			return "", &browser.TimeoutError{Op: "wait for new window", After: timeout}
		}
		if err := sleep(ctx, windowPollInterval); err != nil {
			return "", err
		}
	}
}

const windowPollInterval = 200 * time.Millisecond

// savePDF prints the page into the download directory under a partial name, then
// exposes it as a completed PDF for the poller.
func (f *Fetcher) savePDF(ctx context.Context, s browser.Session) error {
	name := uuid.NewString() + ".pdf"
	partial := filepath.Join(f.cfg.DownloadDir, name+".part")
	if err := s.SavePDF(ctx, partial); err != nil {
		return err
	}
	if err := os.Rename(partial, filepath.Join(f.cfg.DownloadDir, name)); err != nil {
		return fmt.Errorf("failed to finish printed pdf: %w", err)
	}
	return nil
}

// fail wraps err and, for expired waits, dumps the current page for diagnosis.
func (f *Fetcher) fail(ctx context.Context, s browser.Session, stage string, err error) error {
	if errors.Is(err, browser.ErrTimeout) || errors.Is(err, download.ErrIncomplete) {
		path := f.cfg.DebugPagePath
		if path == "" {
			path = DefaultDebugPagePath
		}
		if dumpErr := browser.DumpPageSource(ctx, s, path); dumpErr != nil {
			f.log.WithError(dumpErr).Warn("failed to save page source")
		} else {
			f.log.WithField("path", path).Error("page source saved")
		}
	}
	return &BillError{Stage: stage, Cause: err}
}

// restoreWindows closes every window opened since initial was taken and returns to the first one.
func (f *Fetcher) restoreWindows(ctx context.Context, s browser.Session, initial []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	handles, err := s.WindowHandles(ctx)
	if err != nil {
		f.log.WithError(err).Warn("failed to list windows")
		return
	}
	var closed []string
	for _, h := range handles {
		if slices.Contains(initial, h) {
			continue
		}
		if err := s.SwitchWindow(ctx, h); err != nil {
			f.log.WithError(err).WithField("window", h).Warn("failed to switch window")
			continue
		}
		if err := s.CloseWindow(ctx); err != nil {
			f.log.WithError(err).WithField("window", h).Warn("failed to close window")
			continue
		}
		closed = append(closed, h)
	}
	if err := s.SwitchWindow(ctx, initial[0]); err != nil {
		f.log.WithError(err).Warn("failed to switch back to first window")
		return
	}
	if len(closed) > 0 {
		f.log.WithField("windows", strings.Join(closed, ",")).Debug("closed bill windows")
	}
}
