package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/browser/browsertest"
	"github.com/jonathan/bill-agent/internal/recovery"
)

type fakeSite struct {
	passes [][]Task
	err    error
	reads  int
}

func (s *fakeSite) Name() string        { return "test" }
func (s *fakeSite) DownloadDir() string { return "/downloads" }

func (s *fakeSite) Tasks(context.Context) ([]Task, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	i := s.reads - 1
	if i >= len(s.passes) {
		i = len(s.passes) - 1
	}
	return s.passes[i], nil
}

type fakeKiller struct{ calls int }

func (k *fakeKiller) KillAll(context.Context) error {
	k.calls++
	return nil
}

type restartErr struct{}

func (restartErr) Error() string         { return "captcha attempts exhausted" }
func (restartErr) RequiresRestart() bool { return true }

type recorded struct {
	results  []Result
	restarts int
}

func (r *recorded) RecordResult(_ context.Context, _ uuid.UUID, _ string, res Result) {
	r.results = append(r.results, res)
}

func (r *recorded) RecordRestart(context.Context, uuid.UUID, string) { r.restarts++ }

func ok(artifact string) func(context.Context, browser.Session) (string, error) {
	return func(context.Context, browser.Session) (string, error) { return artifact, nil }
}

func newRunner(t *testing.T, maxRestarts int) (*Runner, *browsertest.Launcher, *fakeKiller, *recorded, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	launcher := &browsertest.Launcher{}
	killer := &fakeKiller{}
	rec := &recorded{}
	r := New(Config{MaxRestarts: maxRestarts}, launcher, recovery.NewCascade(killer, logger), logger, rec)
	return r, launcher, killer, rec, hook
}

func TestRun_SkipsRecordWithoutSession(t *testing.T) {
	r, launcher, _, rec, hook := newRunner(t, 0)
	site := &fakeSite{passes: [][]Task{{
		{
			Key:      "1",
			Validate: func() error { return errors.New("missing username or password") },
			Run: func(context.Context, browser.Session) (string, error) {
				t.Fatal("skipped record must not run")
				return "", nil
			},
		},
	}}}

	summary, err := r.Run(context.Background(), site)
	require.NoError(t, err)
	assert.Empty(t, launcher.Launched, "no session for a skipped record")
	require.Len(t, summary.Results, 1)
	assert.Equal(t, Skipped, summary.Results[0].Outcome)
	assert.Len(t, rec.results, 1)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "skipping record" {
			found = true
			assert.Equal(t, "1", e.Data["record_id"])
			assert.Equal(t, logrus.ErrorLevel, e.Level)
		}
	}
	assert.True(t, found, "skip must be logged")
}

func TestRun_OneSessionPerRecord(t *testing.T) {
	r, launcher, killer, _, _ := newRunner(t, 0)
	site := &fakeSite{passes: [][]Task{{
		{Key: "1", Run: ok("/downloads/a.pdf")},
		{Key: "2", Run: func(context.Context, browser.Session) (string, error) { return "", errors.New("boom") }},
		{Key: "3", Run: ok("/downloads/c.pdf")},
	}}}

	summary, err := r.Run(context.Background(), site)
	require.NoError(t, err)

	require.Len(t, launcher.Launched, 3)
	for _, f := range launcher.Launched {
		assert.Equal(t, 1, f.QuitCalls, "every session is closed")
	}
	assert.Equal(t, []string{"/downloads", "/downloads", "/downloads"}, launcher.Dirs)
	assert.Equal(t, 2, summary.Count(Success))
	assert.Equal(t, 1, summary.Count(FailedRecovered))
	assert.Equal(t, []string{"/downloads/a.pdf", "/downloads/c.pdf"}, summary.Artifacts())
	assert.Zero(t, killer.calls)
	assert.Zero(t, summary.Restarts)
}

func TestRun_RecoverAcceptsPendingAlert(t *testing.T) {
	r, launcher, _, _, _ := newRunner(t, 0)
	site := &fakeSite{passes: [][]Task{{
		{Key: "1", Run: func(_ context.Context, s browser.Session) (string, error) {
			s.(*browsertest.Fake).Alerts = []string{"Server error"}
			return "", errors.New("unexpected alert")
		}},
	}}}

	_, err := r.Run(context.Background(), site)
	require.NoError(t, err)
	require.Len(t, launcher.Launched, 1)
	assert.Empty(t, launcher.Launched[0].Alerts)
	assert.Equal(t, 1, launcher.Launched[0].QuitCalls)
}

func TestRun_RestartKillsBrowsersAndRereadsRecords(t *testing.T) {
	r, launcher, killer, rec, _ := newRunner(t, 0)
	var runs []string
	site := &fakeSite{passes: [][]Task{
		{
			{Key: "1", Run: func(context.Context, browser.Session) (string, error) {
				runs = append(runs, "1")
				return "", restartErr{}
			}},
			{Key: "2", Run: ok("never")},
		},
		{
			{Key: "1", Run: func(context.Context, browser.Session) (string, error) {
				runs = append(runs, "1")
				return "/downloads/1.pdf", nil
			}},
			{Key: "2", Run: func(context.Context, browser.Session) (string, error) {
				runs = append(runs, "2")
				return "/downloads/2.pdf", nil
			}},
		},
	}}

	summary, err := r.Run(context.Background(), site)
	require.NoError(t, err)

	assert.Equal(t, 2, site.reads, "records are re-read after a restart")
	assert.Equal(t, 1, killer.calls)
	assert.Equal(t, 1, summary.Restarts)
	assert.Equal(t, 1, rec.restarts)
	assert.Equal(t, []string{"1", "1", "2"}, runs)
	assert.Equal(t, FailedRestarted, summary.Results[0].Outcome)
	assert.Equal(t, 2, summary.Count(Success))
	assert.Len(t, launcher.Launched, 3)
	assert.Equal(t, 1, launcher.Launched[0].QuitCalls)
}

func TestRun_PanicRestarts(t *testing.T) {
	r, _, killer, _, _ := newRunner(t, 0)
	site := &fakeSite{passes: [][]Task{
		{{Key: "1", Run: func(context.Context, browser.Session) (string, error) { panic("driver crashed") }}},
		{{Key: "1", Run: ok("/downloads/1.pdf")}},
	}}

	summary, err := r.Run(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, 1, killer.calls)

	var panicErr *recovery.PanicError
	require.ErrorAs(t, summary.Results[0].Err, &panicErr)
	assert.Equal(t, "driver crashed", panicErr.Value)
}

func TestRun_RestartLimit(t *testing.T) {
	r, _, killer, _, _ := newRunner(t, 2)
	site := &fakeSite{passes: [][]Task{
		{{Key: "1", Run: func(context.Context, browser.Session) (string, error) { return "", restartErr{} }}},
	}}

	summary, err := r.Run(context.Background(), site)
	require.ErrorIs(t, err, ErrRestartLimit)
	assert.Equal(t, 3, summary.Restarts)
	assert.Equal(t, 3, killer.calls)
	assert.Equal(t, 3, site.reads)
}

func TestRun_LaunchFailureIsFatal(t *testing.T) {
	r, launcher, _, _, _ := newRunner(t, 0)
	launcher.Err = errors.New("chrome not found")
	site := &fakeSite{passes: [][]Task{{{Key: "1", Run: ok("x")}, {Key: "2", Run: ok("y")}}}}

	_, err := r.Run(context.Background(), site)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestRun_RecordSourceFailureIsFatal(t *testing.T) {
	r, launcher, _, _, _ := newRunner(t, 0)
	site := &fakeSite{err: errors.New("connection refused")}

	_, err := r.Run(context.Background(), site)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read test records")
	assert.Empty(t, launcher.Launched)
}

func TestRun_ContextCancelled(t *testing.T) {
	r, launcher, _, _, _ := newRunner(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	site := &fakeSite{passes: [][]Task{{
		{Key: "1", Run: func(context.Context, browser.Session) (string, error) {
			cancel()
			return "a", nil
		}},
		{Key: "2", Run: ok("b")},
	}}}

	_, err := r.Run(ctx, site)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, launcher.Launched, 1)
}
