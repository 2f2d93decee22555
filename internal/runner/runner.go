// Package runner owns the per-site record loop: one browser session per record,
// per-record recovery, and bounded whole-site restarts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/recovery"
)

// DefaultMaxRestarts bounds whole-site restarts in one run.
const DefaultMaxRestarts = 5

// ErrRestartLimit is returned when a site kept asking for restarts.
var ErrRestartLimit = errors.New("restart limit reached")

// Task is one record of a site.
type Task struct {
	// Key identifies the record in logs and the run ledger.
	Key string
	// Validate, when set, is checked before a session is launched. An error skips the record.
	Validate func() error
	// Run processes the record on a fresh session and returns the artifact path.
	Run func(ctx context.Context, s browser.Session) (string, error)
}

// Site is a portal whose records are processed one at a time.
type Site interface {
	Name() string
	DownloadDir() string
	// Tasks reads the site's records. It is called again after every restart.
	Tasks(ctx context.Context) ([]Task, error)
}

// Recorder observes record outcomes and restarts.
type Recorder interface {
	RecordResult(ctx context.Context, runID uuid.UUID, site string, r Result)
	RecordRestart(ctx context.Context, runID uuid.UUID, site string)
}

// Config configures a Runner.
type Config struct {
	// MaxRestarts bounds restarts per site run; 0 means unlimited.
	MaxRestarts int
}

// Runner processes sites.
type Runner struct {
	launcher  browser.Launcher
	cascade   *recovery.Cascade
	recorders []Recorder
	cfg       Config
	log       logrus.FieldLogger
}

// New creates a runner.
func New(cfg Config, launcher browser.Launcher, cascade *recovery.Cascade, log logrus.FieldLogger, recorders ...Recorder) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		launcher:  launcher,
		cascade:   cascade,
		recorders: recorders,
		cfg:       cfg,
		log:       log,
	}
}

// Run processes every record of site. It ends normally once a full pass over the
// records completes without a restart. A failure to read records or launch a browser is fatal.
func (r *Runner) Run(ctx context.Context, site Site) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New(),
		Site:      site.Name(),
		StartedAt: time.Now(),
	}
	defer func() { summary.FinishedAt = time.Now() }()

	log := r.log.WithFields(logrus.Fields{"site": site.Name(), "run_id": summary.RunID.String()})
	log.Info("starting site run")

	for {
		tasks, err := site.Tasks(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to read %s records: %w", site.Name(), err)
		}
		log.WithField("records", len(tasks)).Info("records loaded")

		restart, err := r.pass(ctx, log, site, tasks, summary)
		if err != nil {
			return summary, err
		}
		if !restart {
			break
		}

		summary.Restarts++
		for _, rec := range r.recorders {
			rec.RecordRestart(ctx, summary.RunID, site.Name())
		}
		if err := r.cascade.PrepareRestart(ctx); err != nil {
			log.WithError(err).Error("restart cleanup failed")
		}
		if r.cfg.MaxRestarts > 0 && summary.Restarts > r.cfg.MaxRestarts {
			return summary, fmt.Errorf("%s: %w (%d)", site.Name(), ErrRestartLimit, r.cfg.MaxRestarts)
		}
		log.WithField("restart", summary.Restarts).Warn("restarting site run")
	}

	log.WithFields(logrus.Fields{
		"succeeded": summary.Count(Success),
		"skipped":   summary.Count(Skipped),
		"failed":    summary.Count(FailedRecovered) + summary.Count(FailedRestarted),
	}).Info("site run finished")
	return summary, nil
}

// pass processes tasks in order and reports whether the site must restart.
func (r *Runner) pass(ctx context.Context, log logrus.FieldLogger, site Site, tasks []Task, summary *Summary) (bool, error) {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		rlog := log.WithField("record_id", task.Key)

		if task.Validate != nil {
			if err := task.Validate(); err != nil {
				rlog.WithError(err).Error("skipping record")
				r.record(ctx, summary, Result{Key: task.Key, Outcome: Skipped, Err: err})
				continue
			}
		}

		sess, err := r.launcher.Launch(ctx, site.DownloadDir())
		if err != nil {
			return false, fmt.Errorf("failed to launch browser for record %s: %w", task.Key, err)
		}

		artifact, err := runTask(ctx, task, sess)
		if err == nil {
			if quitErr := sess.Quit(); quitErr != nil {
				rlog.WithError(quitErr).Warn("failed to close browser")
			}
			rlog.WithField("path", artifact).Info("record processed")
			r.record(ctx, summary, Result{Key: task.Key, Outcome: Success, Artifact: artifact})
			continue
		}

		rlog.WithError(err).Error("record failed")
		if recErr := r.cascade.Recover(ctx, sess); recErr != nil {
			rlog.WithError(recErr).Warn("session recovery incomplete")
		}

		if recovery.Decide(err) == recovery.Restart {
			r.record(ctx, summary, Result{Key: task.Key, Outcome: FailedRestarted, Err: err})
			return true, nil
		}
		r.record(ctx, summary, Result{Key: task.Key, Outcome: FailedRecovered, Err: err})
	}
	return false, nil
}

// runTask converts a panic in the record's driver into a restart-requiring error.
func runTask(ctx context.Context, task Task, s browser.Session) (artifact string, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = recovery.Recovered(v)
		}
	}()
	return task.Run(ctx, s)
}

func (r *Runner) record(ctx context.Context, summary *Summary, res Result) {
	summary.Results = append(summary.Results, res)
	for _, rec := range r.recorders {
		rec.RecordResult(ctx, summary.RunID, summary.Site, res)
	}
}
