// Package browsertest provides a scripted in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonathan/bill-agent/internal/browser"
)

// Fake is a single-threaded browser.Session whose page state is set up by the test.
// Elements are shared by every window; PageSource returns the markup registered for the current window.
type Fake struct {
	// Elements maps Locator.String() to the element's text. Missing locators time out.
	Elements map[string]string
	// Pages maps window handles to their markup.
	Pages map[string]string
	// Handles lists open windows, oldest first.
	Handles []string
	Current string
	// Alerts is the queue of open dialogs; the first one is showing.
	Alerts []string
	// OnClick hooks run after a successful click on the keyed locator.
	OnClick map[string]func(f *Fake) error
	// ScreenshotPNG is returned by Screenshot.
	ScreenshotPNG []byte
	// PDF is written by SavePDF.
	PDF []byte
	// Fail makes the keyed operation ("navigate", "refresh", "page source", ...) return the error.
	Fail map[string]error

	// Typed records the last value typed into each locator.
	Typed map[string]string
	// Calls records every operation in order, e.g. "click id=loginButton".
	Calls     []string
	Navigated []string
	QuitCalls int

	nextHandle int
}

// New returns a fake with one window open.
func New() *Fake {
	f := &Fake{
		Elements: make(map[string]string),
		Pages:    make(map[string]string),
		OnClick:  make(map[string]func(f *Fake) error),
		Fail:     make(map[string]error),
		Typed:    make(map[string]string),
	}
	f.Current = f.OpenWindow("")
	return f
}

// OpenWindow adds a window with the given markup and returns its handle. It does not switch to it.
func (f *Fake) OpenWindow(html string) string {
	f.nextHandle++
	handle := fmt.Sprintf("window-%d", f.nextHandle)
	f.Handles = append(f.Handles, handle)
	f.Pages[handle] = html
	return handle
}

// Show makes loc present with the given text.
func (f *Fake) Show(loc browser.Locator, text string) {
	f.Elements[loc.String()] = text
}

// Hide removes loc from the page.
func (f *Fake) Hide(loc browser.Locator) {
	delete(f.Elements, loc.String())
}

// Count returns how many recorded calls start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *Fake) record(op string, loc *browser.Locator) {
	if loc != nil {
		f.Calls = append(f.Calls, op+" "+loc.String())
		return
	}
	f.Calls = append(f.Calls, op)
}

func (f *Fake) find(op string, loc browser.Locator, timeout time.Duration) (string, error) {
	f.record(op, &loc)
	if err := f.Fail[op]; err != nil {
		return "", err
	}
	if len(f.Alerts) > 0 {
		return "", &browser.Error{Op: op, Locator: loc.String(), Cause: errors.New("unexpected alert open: " + f.Alerts[0])}
	}
	text, ok := f.Elements[loc.String()]
	if !ok {
		return "", &browser.TimeoutError{Op: op, Locator: loc.String(), After: timeout}
	}
	return text, nil
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.record("navigate", nil)
	f.Navigated = append(f.Navigated, url)
	return f.Fail["navigate"]
}

func (f *Fake) Refresh(context.Context) error {
	f.record("refresh", nil)
	return f.Fail["refresh"]
}

func (f *Fake) WaitReady(_ context.Context, timeout time.Duration) error {
	f.record("wait ready", nil)
	if err := f.Fail["wait ready"]; err != nil {
		return err
	}
	return nil
}

func (f *Fake) WaitVisible(_ context.Context, loc browser.Locator, timeout time.Duration) error {
	_, err := f.find("wait visible", loc, timeout)
	return err
}

func (f *Fake) Click(_ context.Context, loc browser.Locator, timeout time.Duration) error {
	if _, err := f.find("click", loc, timeout); err != nil {
		return err
	}
	if hook := f.OnClick[loc.String()]; hook != nil {
		return hook(f)
	}
	return nil
}

func (f *Fake) Type(_ context.Context, loc browser.Locator, text string, timeout time.Duration) error {
	if _, err := f.find("type", loc, timeout); err != nil {
		return err
	}
	f.Typed[loc.String()] = text
	return nil
}

func (f *Fake) Text(_ context.Context, loc browser.Locator, timeout time.Duration) (string, error) {
	return f.find("text", loc, timeout)
}

func (f *Fake) Screenshot(_ context.Context, loc browser.Locator, timeout time.Duration) ([]byte, error) {
	if _, err := f.find("screenshot", loc, timeout); err != nil {
		return nil, err
	}
	return f.ScreenshotPNG, nil
}

func (f *Fake) PageSource(context.Context) (string, error) {
	f.record("page source", nil)
	if err := f.Fail["page source"]; err != nil {
		return "", err
	}
	return f.Pages[f.Current], nil
}

func (f *Fake) SavePDF(_ context.Context, path string) error {
	f.record("save pdf", nil)
	if err := f.Fail["save pdf"]; err != nil {
		return err
	}
	return os.WriteFile(path, f.PDF, 0o644)
}

func (f *Fake) CurrentAlert(context.Context, time.Duration) (string, bool, error) {
	f.record("current alert", nil)
	if err := f.Fail["current alert"]; err != nil {
		return "", false, err
	}
	if len(f.Alerts) == 0 {
		return "", false, nil
	}
	return f.Alerts[0], true, nil
}

func (f *Fake) AcceptAlert(context.Context) error {
	f.record("accept alert", nil)
	if len(f.Alerts) == 0 {
		return errors.New("no alert open")
	}
	f.Alerts = f.Alerts[1:]
	return nil
}

func (f *Fake) WindowHandles(context.Context) ([]string, error) {
	return append([]string(nil), f.Handles...), nil
}

func (f *Fake) SwitchWindow(_ context.Context, handle string) error {
	f.Calls = append(f.Calls, "switch "+handle)
	for _, h := range f.Handles {
		if h == handle {
			f.Current = handle
			return nil
		}
	}
	return &browser.Error{Op: "switch window", Locator: handle, Cause: errors.New("no such window")}
}

func (f *Fake) CloseWindow(context.Context) error {
	f.Calls = append(f.Calls, "close "+f.Current)
	if f.Current == "" {
		return browser.ErrNoWindow
	}
	for i, h := range f.Handles {
		if h == f.Current {
			f.Handles = append(f.Handles[:i:i], f.Handles[i+1:]...)
			break
		}
	}
	f.Current = ""
	return nil
}

func (f *Fake) Quit() error {
	f.QuitCalls++
	f.record("quit", nil)
	return nil
}

// Launcher hands out fakes built by NewSession, recording each one.
type Launcher struct {
	NewSession func() *Fake
	Err        error
	Launched   []*Fake
	Dirs       []string
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(_ context.Context, downloadDir string) (browser.Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	f := New()
	if l.NewSession != nil {
		f = l.NewSession()
	}
	l.Launched = append(l.Launched, f)
	l.Dirs = append(l.Dirs, downloadDir)
	return f, nil
}
