package mahadiscom

import (
	"context"
	"time"
)

// Timings bounds every wait the portal flow performs.
type Timings struct {
	// ElementWait bounds lookups of login and navigation controls.
	ElementWait time.Duration
	// DetailsWait bounds the consumer identity lookup on the bill page.
	DetailsWait time.Duration
	// PrintWait bounds the lookup of the print/download button.
	PrintWait time.Duration
	// WindowWait bounds how long a click may take to open its window.
	WindowWait time.Duration
	// LoginSettle follows the click on the Login link.
	LoginSettle time.Duration
	// RefreshSettle follows a CAPTCHA refresh.
	RefreshSettle time.Duration
	// DownloadSettle separates the print trigger from download polling.
	DownloadSettle time.Duration
}

// DefaultTimings returns the waits the portal needs on a typical connection.
func DefaultTimings() Timings {
	return Timings{
		ElementWait:    10 * time.Second,
		DetailsWait:    20 * time.Second,
		PrintWait:      15 * time.Second,
		WindowWait:     10 * time.Second,
		LoginSettle:    2 * time.Second,
		RefreshSettle:  2 * time.Second,
		DownloadSettle: 5 * time.Second,
	}
}

// sleep waits for d or until ctx is done.
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
