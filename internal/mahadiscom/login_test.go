package mahadiscom

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bill-agent/internal/alerts"
	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/browser/browsertest"
	"github.com/jonathan/bill-agent/internal/captcha"
	"github.com/jonathan/bill-agent/internal/recovery"
)

// loginPage returns a fake showing every control of the login flow.
func loginPage() *browsertest.Fake {
	f := browsertest.New()
	for _, loc := range []browser.Locator{
		LanguageMenu, EnglishOption, LoginLink, UsernameInput, PasswordInput,
		CaptchaImage, CaptchaInput, LoginButton, CaptchaRefresh,
	} {
		f.Show(loc, "")
	}
	f.ScreenshotPNG = []byte("png")
	return f
}

// sequence answers with texts in order, repeating the last one.
func sequence(texts ...string) (captcha.Solver, *int) {
	calls := 0
	return captcha.Func(func(context.Context, []byte) (string, error) {
		i := calls
		calls++
		if i >= len(texts) {
			i = len(texts) - 1
		}
		return texts[i], nil
	}), &calls
}

func newEngine(t *testing.T, solver captcha.Solver) *Engine {
	t.Helper()
	cfg := EngineConfig{
		LoginURL:         "https://portal.test/wss",
		MaxAttempts:      DefaultMaxAttempts,
		CaptchaImagePath: filepath.Join(t.TempDir(), "captcha.png"),
	}
	return NewEngine(cfg, solver, alerts.NewClassifier(alerts.LoginRules(), 0, nil), nil)
}

func TestLogin_EmptyExtractionsThenSuccess(t *testing.T) {
	texts := make([]string, 9, 10)
	texts = append(texts, "AB12")
	solver, calls := sequence(texts...)
	e := newEngine(t, solver)
	f := loginPage()

	attempts, err := e.Login(context.Background(), f, "user", "pw")
	require.NoError(t, err)
	require.Len(t, attempts, 10)
	assert.Equal(t, 10, *calls)

	for _, a := range attempts[:9] {
		assert.ErrorIs(t, a.Err, captcha.ErrEmptyText)
		assert.Equal(t, "extraction-failed", a.Result())
	}
	last := attempts[9]
	assert.True(t, last.Succeeded())
	assert.Equal(t, "AB12", last.Text)
	assert.Equal(t, 10, last.Index)

	assert.Equal(t, "AB12", f.Typed[CaptchaInput.String()])
	assert.Equal(t, 9, f.Count("click "+CaptchaRefresh.String()))
	assert.Equal(t, 1, f.Count("type "+UsernameInput.String()), "credentials are entered once")
	assert.Equal(t, 1, f.Count("type "+PasswordInput.String()))
	assert.Equal(t, []string{"https://portal.test/wss"}, f.Navigated)

	png, err := os.ReadFile(e.cfg.CaptchaImagePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)
}

func TestLogin_InvalidCaptchaExhaustsBudget(t *testing.T) {
	solver, _ := sequence("XY12")
	e := newEngine(t, solver)
	f := loginPage()
	f.OnClick[LoginButton.String()] = func(f *browsertest.Fake) error {
		f.Alerts = append(f.Alerts, "Invalid CAPTCHA")
		return nil
	}

	var observed []Attempt
	e.OnAttempt = func(a Attempt) { observed = append(observed, a) }

	attempts, err := e.Login(context.Background(), f, "user", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)

	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.True(t, loginErr.RequiresRestart())
	assert.Equal(t, 10, loginErr.Attempts)
	assert.Equal(t, recovery.Restart, recovery.Decide(err))

	require.Len(t, attempts, 10)
	assert.Len(t, observed, 10)
	for _, a := range attempts {
		assert.Equal(t, alerts.CaptchaInvalid, a.Outcome)
		assert.Equal(t, "Invalid CAPTCHA", a.Alert)
		assert.NoError(t, a.Err)
	}
	assert.Empty(t, f.Alerts, "every alert is dismissed")
	assert.Equal(t, 10, f.Count("accept alert"))
	assert.Equal(t, 9, f.Count("click "+CaptchaRefresh.String()))
	assert.Equal(t, 1, f.Count("type "+UsernameInput.String()))
}

func TestLogin_AutomationErrorConsumesAttempt(t *testing.T) {
	solver, _ := sequence("AB12")
	e := newEngine(t, solver)
	f := loginPage()
	f.Hide(CaptchaImage)
	f.OnClick[CaptchaRefresh.String()] = func(f *browsertest.Fake) error {
		f.Show(CaptchaImage, "")
		return nil
	}

	attempts, err := e.Login(context.Background(), f, "user", "pw")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "automation-error", attempts[0].Result())
	assert.ErrorIs(t, attempts[0].Err, browser.ErrTimeout)
	assert.True(t, attempts[1].Succeeded())
}

func TestLogin_UnexpectedAlertIsRetried(t *testing.T) {
	solver, _ := sequence("AB12")
	e := newEngine(t, solver)
	f := loginPage()
	clicks := 0
	f.OnClick[LoginButton.String()] = func(f *browsertest.Fake) error {
		clicks++
		if clicks == 1 {
			f.Alerts = append(f.Alerts, "Server is busy")
		}
		return nil
	}

	attempts, err := e.Login(context.Background(), f, "user", "pw")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, alerts.Unexpected, attempts[0].Outcome)
	assert.Equal(t, "Server is busy", attempts[0].Alert)
	assert.True(t, attempts[1].Succeeded())
}

func TestLogin_AlwaysTerminates(t *testing.T) {
	phrases := []string{"", "Invalid CAPTCHA", "Enter CAPTCHA First", "Please enter Login Name", "Please enter Password", "Oops"}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		solver := captcha.Func(func(context.Context, []byte) (string, error) {
			if rng.Intn(4) == 0 {
				return "", nil
			}
			return "AB12", nil
		})
		e := newEngine(t, solver)
		f := loginPage()
		f.OnClick[LoginButton.String()] = func(f *browsertest.Fake) error {
			if p := phrases[rng.Intn(len(phrases))]; p != "" {
				f.Alerts = append(f.Alerts, p)
			}
			return nil
		}

		attempts, err := e.Login(context.Background(), f, "user", "pw")
		require.LessOrEqual(t, len(attempts), DefaultMaxAttempts)
		require.NotEmpty(t, attempts)
		if err == nil {
			assert.True(t, attempts[len(attempts)-1].Succeeded())
		} else {
			assert.ErrorIs(t, err, ErrAttemptsExhausted)
			assert.Len(t, attempts, DefaultMaxAttempts)
		}
		assert.Empty(t, f.Alerts)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	solver, calls := sequence("AB12")
	e := newEngine(t, solver)
	f := loginPage()

	_, err := e.Login(context.Background(), f, "", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, f.Navigated)
	assert.Zero(t, *calls)
	assert.Equal(t, recovery.Continue, recovery.Decide(err))
}

func TestLogin_FormFailureDoesNotRestart(t *testing.T) {
	solver, _ := sequence("AB12")
	e := newEngine(t, solver)
	f := loginPage()
	f.Hide(LanguageMenu)

	attempts, err := e.Login(context.Background(), f, "user", "pw")
	assert.Empty(t, attempts)
	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "open form", loginErr.Stage)
	assert.False(t, loginErr.RequiresRestart())
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

func TestLogin_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	solver := captcha.Func(func(context.Context, []byte) (string, error) {
		cancel()
		return "", errors.New("ocr interrupted")
	})
	e := newEngine(t, solver)

	attempts, err := e.Login(ctx, loginPage(), "user", "pw")
	assert.Len(t, attempts, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
}
