package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// pollInterval paces the bounded polls for dialogs, document readiness and new windows.
const pollInterval = 100 * time.Millisecond

// Config controls how Chrome is launched.
type Config struct {
	// ExecPath overrides the Chrome binary chromedp looks up.
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// ActionTimeout bounds operations that take no explicit timeout (navigate, page source, close).
	ActionTimeout time.Duration
}

// DefaultConfig returns the launch settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Headless:      true,
		WindowWidth:   1366,
		WindowHeight:  900,
		ActionTimeout: 30 * time.Second,
	}
}

// ChromeLauncher starts chromedp-controlled Chrome instances.
type ChromeLauncher struct {
	cfg Config
	log logrus.FieldLogger
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(cfg Config, log logrus.FieldLogger) *ChromeLauncher {
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	if cfg.WindowWidth == 0 || cfg.WindowHeight == 0 {
		cfg.WindowWidth, cfg.WindowHeight = DefaultConfig().WindowWidth, DefaultConfig().WindowHeight
	}
	return &ChromeLauncher{cfg: cfg, log: log}
}

// allocatorOptions builds the exec allocator flags for a profile directory.
func (l *ChromeLauncher) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("kiosk-printing", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.NoSandbox,
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts Chrome with a throwaway profile whose downloads and prints land in downloadDir.
func (l *ChromeLauncher) Launch(ctx context.Context, downloadDir string) (Session, error) {
	absDir, err := filepath.Abs(downloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	profileDir, err := os.MkdirTemp("", "bill-agent-profile-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create chrome profile: %w", err)
	}
	if err := WritePreferences(profileDir, absDir); err != nil {
		_ = os.RemoveAll(profileDir)
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(profileDir)...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		cfg:         l.cfg,
		log:         l.log,
		allocCancel: allocCancel,
		profileDir:  profileDir,
		windows:     make(map[target.ID]*window),
	}
	root := &window{ctx: rootCtx, cancel: rootCancel, dialogCh: make(chan struct{}, 1)}
	s.listenDialogs(root)
	chromedp.ListenTarget(rootCtx, s.onTargetEvent)

	// The first Run allocates the browser; it must not carry a timeout of its own.
	if err := chromedp.Run(rootCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(absDir).
			WithEventsEnabled(true),
	); err != nil {
		rootCancel()
		allocCancel()
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	root.id = chromedp.FromContext(rootCtx).Target.TargetID
	s.root = root.id
	s.windows[root.id] = root
	s.order = []target.ID{root.id}
	s.current = root.id

	l.log.WithFields(logrus.Fields{
		"download_dir": absDir,
		"headless":     l.cfg.Headless,
	}).Debug("chrome session started")

	return s, nil
}

type window struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by chromeSession.mu
	dialogOpen bool
	dialogText string
	dialogCh   chan struct{}
}

// chromeSession implements Session on top of chromedp target contexts, one per window.
type chromeSession struct {
	cfg         Config
	log         logrus.FieldLogger
	allocCancel context.CancelFunc
	profileDir  string

	mu      sync.Mutex
	windows map[target.ID]*window
	order   []target.ID
	root    target.ID
	current target.ID

	quitOnce sync.Once
	quitErr  error
}

// listenDialogs records JavaScript dialogs opened on w. Listeners run on chromedp's event goroutine.
func (s *chromeSession) listenDialogs(w *window) {
	chromedp.ListenTarget(w.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			s.mu.Lock()
			w.dialogOpen = true
			w.dialogText = e.Message
			s.mu.Unlock()
			select {
			case w.dialogCh <- struct{}{}:
			default:
			}
		case *page.EventJavascriptDialogClosed:
			s.mu.Lock()
			w.dialogOpen = false
			w.dialogText = ""
			s.mu.Unlock()
		}
	})
}

// onTargetEvent keeps the window order in creation order.
func (s *chromeSession) onTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		s.mu.Lock()
		s.appendHandle(e.TargetInfo.TargetID)
		s.mu.Unlock()
	case *target.EventTargetDestroyed:
		s.mu.Lock()
		s.removeHandle(e.TargetID)
		s.mu.Unlock()
	}
}

func (s *chromeSession) appendHandle(id target.ID) {
	for _, existing := range s.order {
		if existing == id {
			return
		}
	}
	s.order = append(s.order, id)
}

func (s *chromeSession) removeHandle(id target.ID) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *chromeSession) currentWindow() (*window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[s.current]
	if !ok {
		return nil, ErrNoWindow
	}
	return w, nil
}

// run executes actions on the current window bounded by timeout.
func (s *chromeSession) run(ctx context.Context, op string, loc *Locator, timeout time.Duration, actions ...chromedp.Action) error {
	w, err := s.currentWindow()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(w.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return s.wrap(op, loc, timeout, err)
	}
	return nil
}

func (s *chromeSession) wrap(op string, loc *Locator, timeout time.Duration, err error) error {
	var locStr string
	if loc != nil {
		locStr = loc.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Locator: locStr, After: timeout, Cause: err}
	}
	return &Error{Op: op, Locator: locStr, Cause: err}
}

func queryOptions(loc Locator) []chromedp.QueryOption {
	switch loc.By {
	case ByID:
		return []chromedp.QueryOption{chromedp.ByID}
	case ByXPath:
		return []chromedp.QueryOption{chromedp.BySearch}
	default:
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
}

// selector returns the chromedp selector for loc; ids are passed with a leading '#'.
func selector(loc Locator) string {
	if loc.By == ByID {
		return "#" + loc.Value
	}
	return loc.Value
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", nil, s.cfg.ActionTimeout, chromedp.Navigate(url))
}

func (s *chromeSession) Refresh(ctx context.Context) error {
	return s.run(ctx, "refresh", nil, s.cfg.ActionTimeout, chromedp.Reload())
}

func (s *chromeSession) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var state string
		err := s.run(ctx, "ready state", nil, s.cfg.ActionTimeout, chromedp.Evaluate(`document.readyState`, &state))
		if err == nil && state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Op: "wait ready", After: timeout, Cause: err}
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (s *chromeSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	return s.run(ctx, "wait visible", &loc, timeout, chromedp.WaitVisible(selector(loc), opts...))
}

// Click returns as soon as the click completes or a dialog opens on the window.
// A dialog opened by the click handler blocks the CDP input call until it is handled.
func (s *chromeSession) Click(ctx context.Context, loc Locator, timeout time.Duration) error {
	w, err := s.currentWindow()
	if err != nil {
		return err
	}
	select {
	case <-w.dialogCh:
	default:
	}

	done := make(chan error, 1)
	runCtx, cancel := context.WithTimeout(w.ctx, timeout)
	defer cancel()
	go func() {
		opts := append(queryOptions(loc), chromedp.NodeVisible)
		done <- chromedp.Run(runCtx, chromedp.Click(selector(loc), opts...))
	}()

	select {
	case err := <-done:
		if err != nil {
			return s.wrap("click", &loc, timeout, err)
		}
		return nil
	case <-w.dialogCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chromeSession) Type(ctx context.Context, loc Locator, text string, timeout time.Duration) error {
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	return s.run(ctx, "type", &loc, timeout,
		chromedp.Clear(selector(loc), opts...),
		chromedp.SendKeys(selector(loc), text, opts...),
	)
}

func (s *chromeSession) Text(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	var text string
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	if err := s.run(ctx, "text", &loc, timeout, chromedp.Text(selector(loc), &text, opts...)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *chromeSession) Screenshot(ctx context.Context, loc Locator, timeout time.Duration) ([]byte, error) {
	var buf []byte
	opts := append(queryOptions(loc), chromedp.NodeVisible)
	if err := s.run(ctx, "screenshot", &loc, timeout, chromedp.Screenshot(selector(loc), &buf, opts...)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "page source", nil, s.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) SavePDF(ctx context.Context, path string) error {
	var data []byte
	err := s.run(ctx, "print to pdf", nil, s.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		return err
	}))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pdf %s: %w", path, err)
	}
	return nil
}

func (s *chromeSession) CurrentAlert(ctx context.Context, timeout time.Duration) (string, bool, error) {
	w, err := s.currentWindow()
	if err != nil {
		return "", false, err
	}
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		open, text := w.dialogOpen, w.dialogText
		s.mu.Unlock()
		if open {
			return text, true, nil
		}
		if !time.Now().Before(deadline) {
			return "", false, nil
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return "", false, err
		}
	}
}

func (s *chromeSession) AcceptAlert(ctx context.Context) error {
	w, err := s.currentWindow()
	if err != nil {
		return err
	}
	if err := s.run(ctx, "accept alert", nil, s.cfg.ActionTimeout, page.HandleJavaScriptDialog(true)); err != nil {
		return err
	}
	s.mu.Lock()
	w.dialogOpen = false
	w.dialogText = ""
	s.mu.Unlock()
	return nil
}

// WindowHandles reconciles the event-ordered handle list with the browser's page targets.
func (s *chromeSession) WindowHandles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	rootCtx := s.windows[s.root].ctx
	s.mu.Unlock()

	listCtx, cancel := context.WithTimeout(rootCtx, s.cfg.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(listCtx)
	if err != nil {
		return nil, s.wrap("window handles", nil, s.cfg.ActionTimeout, err)
	}

	live := make(map[target.ID]bool, len(infos))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		live[info.TargetID] = true
		s.appendHandle(info.TargetID)
	}
	handles := make([]string, 0, len(s.order))
	kept := s.order[:0]
	for _, id := range s.order {
		if live[id] {
			kept = append(kept, id)
			handles = append(handles, string(id))
		}
	}
	s.order = kept
	return handles, nil
}

func (s *chromeSession) SwitchWindow(ctx context.Context, handle string) error {
	id := target.ID(handle)
	s.mu.Lock()
	if _, ok := s.windows[id]; ok {
		s.current = id
		s.mu.Unlock()
		return nil
	}
	rootCtx := s.windows[s.root].ctx
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(rootCtx, chromedp.WithTargetID(id))
	w := &window{id: id, ctx: tabCtx, cancel: tabCancel, dialogCh: make(chan struct{}, 1)}
	s.listenDialogs(w)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return &Error{Op: "switch window", Locator: handle, Cause: err}
	}

	s.mu.Lock()
	s.windows[id] = w
	s.current = id
	s.mu.Unlock()
	return nil
}

func (s *chromeSession) CloseWindow(ctx context.Context) error {
	w, err := s.currentWindow()
	if err != nil {
		return err
	}

	if w.id == s.root {
		// Cancelling the root context would shut the browser down.
		if err := s.run(ctx, "close window", nil, s.cfg.ActionTimeout, page.Close()); err != nil {
			return err
		}
	} else if err := chromedp.Cancel(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return &Error{Op: "close window", Locator: string(w.id), Cause: err}
	}

	s.mu.Lock()
	delete(s.windows, w.id)
	s.removeHandle(w.id)
	s.current = ""
	s.mu.Unlock()
	return nil
}

func (s *chromeSession) Quit() error {
	s.quitOnce.Do(func() {
		s.mu.Lock()
		root := s.windows[s.root]
		s.mu.Unlock()
		if root != nil {
			if err := chromedp.Cancel(root.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.quitErr = fmt.Errorf("failed to close chrome: %w", err)
			}
		}
		s.allocCancel()
		if err := os.RemoveAll(s.profileDir); err != nil {
			s.log.WithError(err).Warn("failed to remove chrome profile")
		}
	})
	return s.quitErr
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
