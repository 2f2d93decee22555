package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/bill-agent/internal/browser"
)

// DefaultWait bounds how long the classifier waits for a dialog after a submit.
const DefaultWait = 5 * time.Second

// Rule maps dialog text containing Contains to Outcome. Rules are tried in order.
type Rule struct {
	Contains string  `json:"contains" validate:"required"`
	Outcome  Outcome `json:"outcome"`
}

// LoginRules are the dialogs raised by the Maharashtra login form.
func LoginRules() []Rule {
	return []Rule{
		{Contains: "Invalid CAPTCHA", Outcome: CaptchaInvalid},
		{Contains: "Enter CAPTCHA First", Outcome: CaptchaMissing},
		{Contains: "Please enter Login Name", Outcome: RequiredFieldMissing},
		{Contains: "Please enter Password", Outcome: RequiredFieldMissing},
	}
}

// IVRSRules are the dialogs raised by the Madhya Pradesh bill lookup form.
func IVRSRules() []Rule {
	return []Rule{
		{Contains: "Invalid IVRS", Outcome: InvalidAccount},
	}
}

// Result is one inspected dialog.
type Result struct {
	Outcome Outcome
	// Text is empty when no dialog appeared.
	Text string
}

// Classifier inspects and dismisses post-submit dialogs.
type Classifier struct {
	rules []Rule
	wait  time.Duration
	log   logrus.FieldLogger
}

// NewClassifier creates a classifier. Empty rules means every dialog is Unexpected; zero wait uses DefaultWait.
func NewClassifier(rules []Rule, wait time.Duration, log logrus.FieldLogger) *Classifier {
	if wait <= 0 {
		wait = DefaultWait
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Classifier{
		rules: append([]Rule(nil), rules...),
		wait:  wait,
		log:   log,
	}
}

// Classify maps dialog text to an outcome using the first matching rule.
func (c *Classifier) Classify(text string) Outcome {
	for _, r := range c.rules {
		if r.Contains != "" && strings.Contains(text, r.Contains) {
			return r.Outcome
		}
	}
	return Unexpected
}

// Inspect waits for a dialog on s. No dialog means LoginSucceeded.
// A dialog that appeared is always accepted before Inspect returns, whatever the outcome.
func (c *Classifier) Inspect(ctx context.Context, s browser.Session) (Result, error) {
	text, ok, err := c.waitForAlert(ctx, s)
	if err != nil {
		return Result{Outcome: Unexpected}, fmt.Errorf("failed to inspect alert: %w", err)
	}
	if !ok {
		return Result{Outcome: LoginSucceeded}, nil
	}

	res := Result{Outcome: c.Classify(text), Text: text}
	if err := s.AcceptAlert(ctx); err != nil {
		return res, fmt.Errorf("failed to accept alert %q: %w", text, err)
	}

	entry := c.log.WithFields(logrus.Fields{"alert": text, "outcome": res.Outcome.String()})
	if res.Outcome == Unexpected {
		entry.Error("unexpected alert")
	} else {
		entry.Warn("alert dismissed")
	}
	return res, nil
}

// waitForAlert reads the dialog text; if reading fails after a dialog may be showing,
// it still tries to accept it so later automation calls are not blocked.
func (c *Classifier) waitForAlert(ctx context.Context, s browser.Session) (string, bool, error) {
	text, ok, err := s.CurrentAlert(ctx, c.wait)
	if err != nil {
		if acceptErr := s.AcceptAlert(ctx); acceptErr == nil {
			c.log.WithError(err).Warn("accepted alert after failed inspection")
		}
		return "", false, err
	}
	return text, ok, nil
}

// Dismiss accepts any dialog that shows up within wait and returns its text.
func Dismiss(ctx context.Context, s browser.Session, wait time.Duration) (string, bool, error) {
	text, ok, err := s.CurrentAlert(ctx, wait)
	if err != nil || !ok {
		return "", false, err
	}
	if err := s.AcceptAlert(ctx); err != nil {
		return text, true, fmt.Errorf("failed to accept alert %q: %w", text, err)
	}
	return text, true, nil
}
