// Package captcha turns a screenshot of a text CAPTCHA into its characters.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText is returned when a solver read nothing usable from the image.
var ErrEmptyText = errors.New("captcha text is empty")

// Solver reads the characters of a CAPTCHA image.
type Solver interface {
	Solve(ctx context.Context, png []byte) (string, error)
}

// SolverError reports a solver backend failure.
type SolverError struct {
	Solver  string
	Message string
	Cause   error
}

func (e *SolverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s solver: %s: %v", e.Solver, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s solver: %s", e.Solver, e.Message)
}

func (e *SolverError) Unwrap() error {
	return e.Cause
}

// Clean keeps only letters and digits, which is all the portal CAPTCHAs use.
func Clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Func adapts a function to Solver.
type Func func(ctx context.Context, png []byte) (string, error)

// Solve calls f.
func (f Func) Solve(ctx context.Context, png []byte) (string, error) {
	return f(ctx, png)
}
