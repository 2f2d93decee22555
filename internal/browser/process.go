package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// DefaultProcessPattern matches Chrome and Chromium command lines.
const DefaultProcessPattern = "chrome"

// ProcessKiller terminates every browser process on the host.
type ProcessKiller interface {
	KillAll(ctx context.Context) error
}

// PkillKiller kills processes whose command line matches Pattern using pkill -f.
type PkillKiller struct {
	Pattern string
}

// KillAll runs pkill. Exit status 1 (nothing matched) is not an error.
func (k PkillKiller) KillAll(ctx context.Context) error {
	pattern := k.Pattern
	if pattern == "" {
		pattern = DefaultProcessPattern
	}
	cmd := exec.CommandContext(ctx, "pkill", "-f", pattern)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("failed to kill %q processes: %w", pattern, err)
	}
	return nil
}
