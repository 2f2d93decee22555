package captcha

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// DefaultTesseractPath is looked up on PATH.
const DefaultTesseractPath = "tesseract"

// TesseractSolver runs the tesseract CLI in single-line mode.
type TesseractSolver struct {
	Path string
	// Lang is passed as -l when set.
	Lang string
}

// NewTesseractSolver returns a solver that invokes path, or tesseract on PATH when empty.
func NewTesseractSolver(path string) *TesseractSolver {
	if path == "" {
		path = DefaultTesseractPath
	}
	return &TesseractSolver{Path: path}
}

func (s *TesseractSolver) args() []string {
	args := []string{"stdin", "stdout", "--psm", "7"}
	if s.Lang != "" {
		args = append(args, "-l", s.Lang)
	}
	return args
}

// Solve pipes the image to tesseract and returns the cleaned text.
func (s *TesseractSolver) Solve(ctx context.Context, png []byte) (string, error) {
	cmd := exec.CommandContext(ctx, s.Path, s.args()...)
	cmd.Stdin = bytes.NewReader(png)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "tesseract failed"
		}
		return "", &SolverError{Solver: "tesseract", Message: msg, Cause: err}
	}

	text := Clean(stdout.String())
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}
