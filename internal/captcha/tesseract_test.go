package captcha

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTesseract writes a shell script that swallows stdin and prints output.
func fakeTesseract(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"+script), 0o755))
	return path
}

func TestTesseractSolver_Solve(t *testing.T) {
	s := NewTesseractSolver(fakeTesseract(t, "printf 'AB 12\\n'\n"))

	text, err := s.Solve(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "AB12", text)
}

func TestTesseractSolver_Empty(t *testing.T) {
	s := NewTesseractSolver(fakeTesseract(t, "printf ' \\n'\n"))

	_, err := s.Solve(context.Background(), []byte("png"))
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestTesseractSolver_Failure(t *testing.T) {
	s := NewTesseractSolver(fakeTesseract(t, "echo 'bad image' >&2\nexit 1\n"))

	_, err := s.Solve(context.Background(), []byte("png"))
	var solverErr *SolverError
	require.ErrorAs(t, err, &solverErr)
	assert.Equal(t, "bad image", solverErr.Message)
}

func TestTesseractSolver_Args(t *testing.T) {
	s := NewTesseractSolver("")
	assert.Equal(t, DefaultTesseractPath, s.Path)
	assert.Equal(t, []string{"stdin", "stdout", "--psm", "7"}, s.args())

	s.Lang = "eng"
	assert.Equal(t, []string{"stdin", "stdout", "--psm", "7", "-l", "eng"}, s.args())
}

func TestClean(t *testing.T) {
	assert.Equal(t, "AB12", Clean(" A-B 1.2\n"))
	assert.Empty(t, Clean(" \n\t"))
}
