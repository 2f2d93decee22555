package mahadiscom

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/db"
	"github.com/jonathan/bill-agent/internal/runner"
)

// SiteName identifies the portal in logs, metrics and the run ledger.
const SiteName = "mh"

// CredentialStore supplies portal logins.
type CredentialStore interface {
	ListCredentials(ctx context.Context) ([]db.Credential, error)
	GetCredential(ctx context.Context, id int64) (*db.Credential, error)
}

// Site processes every stored login: log in, then download the account's bill.
type Site struct {
	store       CredentialStore
	engine      *Engine
	fetcher     *Fetcher
	downloadDir string
	log         logrus.FieldLogger

	// RecordID restricts the run to one credential when non-zero.
	RecordID int64
}

// NewSite creates the portal site.
func NewSite(store CredentialStore, engine *Engine, fetcher *Fetcher, downloadDir string, log logrus.FieldLogger) *Site {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Site{
		store:       store,
		engine:      engine,
		fetcher:     fetcher,
		downloadDir: downloadDir,
		log:         log,
	}
}

func (s *Site) Name() string        { return SiteName }
func (s *Site) DownloadDir() string { return s.downloadDir }

// Tasks reads the credentials; it is called again on every restart.
func (s *Site) Tasks(ctx context.Context) ([]runner.Task, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]runner.Task, 0, len(creds))
	for _, c := range creds {
		tasks = append(tasks, s.task(c))
	}
	return tasks, nil
}

func (s *Site) credentials(ctx context.Context) ([]db.Credential, error) {
	if s.RecordID == 0 {
		return s.store.ListCredentials(ctx)
	}
	c, err := s.store.GetCredential(ctx, s.RecordID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("credential %d not found", s.RecordID)
	}
	return []db.Credential{*c}, nil
}

func (s *Site) task(c db.Credential) runner.Task {
	return runner.Task{
		Key: strconv.FormatInt(c.ID, 10),
		Validate: func() error {
			if !c.Complete() {
				return ErrMissingCredentials
			}
			return nil
		},
		Run: func(ctx context.Context, sess browser.Session) (string, error) {
			return s.process(ctx, sess, c)
		},
	}
}

func (s *Site) process(ctx context.Context, sess browser.Session, c db.Credential) (string, error) {
	log := s.log.WithField("record_id", c.ID)
	if _, err := s.engine.WithLogger(log).Login(ctx, sess, c.LoginName, c.Password); err != nil {
		return "", err
	}
	bill, err := s.fetcher.WithLogger(log).Fetch(ctx, sess)
	if err != nil {
		return "", err
	}
	log.WithField("path", bill.Path).Info("successfully processed record")
	return bill.Path, nil
}
