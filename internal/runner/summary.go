package runner

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is what happened to one record.
type Outcome string

const (
	Success         Outcome = "success"
	Skipped         Outcome = "skipped"
	FailedRecovered Outcome = "failed-recovered"
	FailedRestarted Outcome = "failed-restarted"
)

// Result is the outcome of one record in one pass.
type Result struct {
	Key      string
	Outcome  Outcome
	Artifact string
	Err      error
}

// Summary describes one site run. Records processed again after a restart appear once per pass.
type Summary struct {
	RunID      uuid.UUID
	Site       string
	StartedAt  time.Time
	FinishedAt time.Time
	Restarts   int
	Results    []Result
}

// Count returns how many results have outcome o.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Artifacts lists the files produced, in order.
func (s *Summary) Artifacts() []string {
	var paths []string
	for _, r := range s.Results {
		if r.Outcome == Success && r.Artifact != "" {
			paths = append(paths, r.Artifact)
		}
	}
	return paths
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
