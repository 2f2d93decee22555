package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credential is one Maharashtra portal login
type Credential struct {
	ID        int64  `json:"id"`
	LoginName string `json:"login_name"`
	Password  string `json:"-"`
}

// Complete reports whether both login name and password are present
func (c Credential) Complete() bool {
	return c.LoginName != "" && c.Password != ""
}

func (c Credential) normalized() Credential {
	c.LoginName = strings.TrimSpace(c.LoginName)
	return c
}

// Record outcome constants, matching runner outcomes
const (
	OutcomeSuccess         = "success"
	OutcomeSkipped         = "skipped"
	OutcomeFailedRecovered = "failed-recovered"
	OutcomeFailedRestarted = "failed-restarted"
)

// RecordResult is one row of the bill_runs ledger
type RecordResult struct {
	ID        int64     `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	Site      string    `json:"site"`
	RecordKey string    `json:"record_key"`
	Outcome   string    `json:"outcome"`
	Artifact  string    `json:"artifact,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
