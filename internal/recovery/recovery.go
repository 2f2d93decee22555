// Package recovery decides what a failed record means for its site run and tears sessions down.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/browser"
)

// Action is what the runner does after a record fails.
type Action int

const (
	// Continue moves on to the next record.
	Continue Action = iota
	// Restart kills every browser and runs the site again from a fresh record list.
	Restart
)

func (a Action) String() string {
	if a == Restart {
		return "restart-site"
	}
	return "continue-next-record"
}

// State is the cascade's position in the running/recovering/restarting cycle.
type State int

const (
	Running State = iota
	Recovering
	Restarting
)

func (s State) String() string {
	switch s {
	case Recovering:
		return "recovering"
	case Restarting:
		return "restarting"
	default:
		return "running"
	}
}

// restarter is implemented by errors that indicate a site-wide problem.
type restarter interface {
	RequiresRestart() bool
}

// Decide maps a record's error to an action. Errors that do not ask for a restart continue.
func Decide(err error) Action {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if r, ok := e.(restarter); ok && r.RequiresRestart() {
			return Restart
		}
	}
	return Continue
}

// PanicError carries a panic recovered from a record's driver.
type PanicError struct {
	Value any
	Stack []byte
}

// Recovered converts a recover() value into a *PanicError.
func Recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("driver panic: %v", e.Value)
}

// RequiresRestart is always true: a crashed driver leaves the browser in an unknown state.
func (e *PanicError) RequiresRestart() bool {
	return true
}

// Cascade performs the recovery and restart side effects.
type Cascade struct {
	killer browser.ProcessKiller
	log    logrus.FieldLogger

	mu    sync.Mutex
	state State
}

// NewCascade creates a cascade. A nil killer skips the process-wide kill.
func NewCascade(killer browser.ProcessKiller, log logrus.FieldLogger) *Cascade {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cascade{killer: killer, log: log}
}

// State returns the current state.
func (c *Cascade) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cascade) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from != to {
		c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("recovery state changed")
	}
}

// Recover releases a failed record's session: any open dialog is accepted and the browser quit.
func (c *Cascade) Recover(ctx context.Context, s browser.Session) error {
	c.transition(Recovering)
	defer c.transition(Running)

	if text, ok, err := alerts.Dismiss(ctx, s, 0); err != nil {
		c.log.WithError(err).Warn("failed to accept pending alert")
	} else if ok {
		c.log.WithField("alert", text).Warn("accepted pending alert")
	}
	if err := s.Quit(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// PrepareRestart kills every browser process on the host. The caller re-reads its records afterwards.
func (c *Cascade) PrepareRestart(ctx context.Context) error {
	c.transition(Restarting)
	defer c.transition(Running)

	if c.killer == nil {
		return nil
	}
	c.log.Warn("terminating all chrome browser instances")
	if err := c.killer.KillAll(ctx); err != nil {
		return fmt.Errorf("failed to terminate browsers: %w", err)
	}
	return nil
}
