// Package alerts classifies the JavaScript dialogs a portal raises after a form submit.
package alerts

import (
	"fmt"
	"strings"
)

// Outcome is the semantic meaning of a post-submit dialog, or of its absence.
type Outcome int

const (
	// LoginSucceeded means no dialog appeared within the wait.
	LoginSucceeded Outcome = iota
	CaptchaInvalid
	CaptchaMissing
	RequiredFieldMissing
	// InvalidAccount is raised by portals that reject the account identifier itself.
	InvalidAccount
	// Unexpected covers any dialog no rule matched.
	Unexpected
)

var outcomeNames = map[Outcome]string{
	LoginSucceeded:       "login-succeeded",
	CaptchaInvalid:       "captcha-invalid",
	CaptchaMissing:       "captcha-missing",
	RequiredFieldMissing: "required-field-missing",
	InvalidAccount:       "invalid-account",
	Unexpected:           "unexpected",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// IsCaptchaFailure reports whether the portal rejected the CAPTCHA value.
func (o Outcome) IsCaptchaFailure() bool {
	return o == CaptchaInvalid || o == CaptchaMissing
}

// ParseOutcome maps a name produced by String back to its Outcome.
func ParseOutcome(name string) (Outcome, error) {
	for o, n := range outcomeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return o, nil
		}
	}
	return Unexpected, fmt.Errorf("unknown alert outcome %q", name)
}

// MarshalText lets outcomes appear by name in JSON config.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
