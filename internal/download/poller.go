// Package download waits for browser downloads to finish and gives them stable names.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultTimeout  = 120 * time.Second
	DefaultInterval = time.Second
)

// ErrIncomplete is returned when no completed PDF appeared before the timeout.
var ErrIncomplete = errors.New("download did not complete")

// PartialSuffixes mark files a browser is still writing.
var PartialSuffixes = []string{".part", ".crdownload"}

// Snapshot records the files present in a directory at one point in time.
type Snapshot map[string]struct{}

// Take lists dir. A missing directory yields an empty snapshot.
func Take(dir string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		snap[e.Name()] = struct{}{}
	}
	return snap, nil
}

// Has reports whether name was present.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Complete reports whether name is a finished PDF.
func Complete(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range PartialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return strings.HasSuffix(lower, ".pdf")
}

// Poller waits for a completed PDF to land in Dir.
type Poller struct {
	Dir      string
	Timeout  time.Duration
	Interval time.Duration
}

// NewPoller returns a poller for dir with the default timeout and interval.
func NewPoller(dir string) *Poller {
	return &Poller{Dir: dir, Timeout: DefaultTimeout, Interval: DefaultInterval}
}

// Wait polls until a completed PDF not in before exists and returns its path.
// When several qualify, the most recently modified wins.
func (p *Poller) Wait(ctx context.Context, before Snapshot) (string, error) {
	timeout, interval := p.Timeout, p.Interval
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		path, err := p.newest(before)
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w within %s in %s", ErrIncomplete, timeout, p.Dir)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) newest(before Snapshot) (string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to list %s: %w", p.Dir, err)
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !Complete(e.Name()) || before.Has(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Renamed or removed between ReadDir and Info.
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = e.Name(), info.ModTime()
		}
	}
	if best == "" {
		return "", nil
	}
	return filepath.Join(p.Dir, best), nil
}
