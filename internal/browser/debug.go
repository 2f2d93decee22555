package browser

import (
	"context"
	"fmt"
	"os"
)

// DumpPageSource writes the current page markup to path for post-mortem inspection.
func DumpPageSource(ctx context.Context, s Session, path string) error {
	html, err := s.PageSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page source: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write page source to %s: %w", path, err)
	}
	return nil
}
