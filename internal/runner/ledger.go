package runner

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/db"
)

// ResultStore persists record outcomes.
type ResultStore interface {
	InsertRecordResult(ctx context.Context, r *db.RecordResult) error
}

// Ledger records every outcome in the bill_runs table (see db.Schema; the table must
// exist beforehand). Write failures are logged, never fatal.
type Ledger struct {
	store ResultStore
	log   logrus.FieldLogger
}

// NewLedger creates a ledger recorder.
func NewLedger(store ResultStore, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{store: store, log: log}
}

func (l *Ledger) RecordResult(ctx context.Context, runID uuid.UUID, site string, r Result) {
	row := &db.RecordResult{
		RunID:     runID,
		Site:      site,
		RecordKey: r.Key,
		Outcome:   string(r.Outcome),
		Artifact:  r.Artifact,
	}
	if r.Err != nil {
		row.Error = r.Err.Error()
	}
	if err := l.store.InsertRecordResult(ctx, row); err != nil {
		l.log.WithError(err).WithField("record_id", r.Key).Warn("failed to write run ledger")
	}
}

func (l *Ledger) RecordRestart(context.Context, uuid.UUID, string) {}
