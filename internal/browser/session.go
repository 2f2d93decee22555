// Package browser provides the browser session used to drive the utility portals.
// Session is the capability the portal code consumes; ChromeLauncher backs it with chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy identifies how a Locator selects an element.
type Strategy int

const (
	// ByID matches the element id attribute.
	ByID Strategy = iota
	// ByXPath evaluates an XPath expression.
	ByXPath
	// ByCSS evaluates a CSS selector.
	ByCSS
)

// Locator identifies an element on the current page.
type Locator struct {
	By    Strategy
	Value string
}

// ID returns a locator matching an element id.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// XPath returns a locator evaluating an XPath expression.
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

// CSS returns a locator evaluating a CSS selector.
func CSS(sel string) Locator { return Locator{By: ByCSS, Value: sel} }

// LinkText returns a locator for an anchor whose visible text equals text.
func LinkText(text string) Locator {
	return XPath(fmt.Sprintf("//a[normalize-space(.)='%s']", text))
}

func (l Locator) String() string {
	switch l.By {
	case ByID:
		return "id=" + l.Value
	case ByXPath:
		return "xpath=" + l.Value
	default:
		return "css=" + l.Value
	}
}

// Session is one browser instance bound to a single record's processing.
// Every wait is bounded by the timeout passed in; an expired wait returns a *TimeoutError.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	// WaitReady blocks until document.readyState is "complete".
	WaitReady(ctx context.Context, timeout time.Duration) error

	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	Click(ctx context.Context, loc Locator, timeout time.Duration) error
	// Type clears the field and sends text to it.
	Type(ctx context.Context, loc Locator, text string, timeout time.Duration) error
	Text(ctx context.Context, loc Locator, timeout time.Duration) (string, error)
	// Screenshot captures the element as PNG.
	Screenshot(ctx context.Context, loc Locator, timeout time.Duration) ([]byte, error)
	PageSource(ctx context.Context) (string, error)
	// SavePDF prints the current page to a PDF file at path.
	SavePDF(ctx context.Context, path string) error

	// CurrentAlert waits up to timeout for a JavaScript dialog on the current window.
	// It reports ok=false when none appeared.
	CurrentAlert(ctx context.Context, timeout time.Duration) (text string, ok bool, err error)
	AcceptAlert(ctx context.Context) error

	// WindowHandles lists open windows, oldest first.
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	// CloseWindow closes the current window. A SwitchWindow must follow before further use.
	CloseWindow(ctx context.Context) error

	// Quit closes the browser. It is safe to call more than once.
	Quit() error
}

// Launcher creates sessions whose downloads land in downloadDir.
type Launcher interface {
	Launch(ctx context.Context, downloadDir string) (Session, error)
}

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("browser wait timed out")

// ErrNoWindow is returned when the session has no current window.
var ErrNoWindow = errors.New("no current window")

// TimeoutError reports a bounded wait that expired.
type TimeoutError struct {
	Op      string
	Locator string
	After   time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	if e.Locator != "" {
		msg = fmt.Sprintf("%s %s timed out after %s", e.Op, e.Locator, e.After)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Error represents a browser operation that failed for a reason other than a timeout.
type Error struct {
	Op      string
	Locator string
	Cause   error
}

func (e *Error) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("browser %s %s: %v", e.Op, e.Locator, e.Cause)
	}
	return fmt.Sprintf("browser %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
