package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxSuffix bounds the collision search.
const maxSuffix = 10000

var nameReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// ArtifactName is the base name, without extension, of a consumer's bill.
func ArtifactName(consumerName, consumerNumber string) string {
	return Sanitize(consumerName) + "_" + Sanitize(consumerNumber)
}

// IVRSName is the base name of a bill fetched by IVRS number.
func IVRSName(ivrs string) string {
	return "IVRS-" + Sanitize(ivrs)
}

// Sanitize strips path separators so a portal value cannot escape the download directory.
func Sanitize(s string) string {
	return nameReplacer.Replace(strings.TrimSpace(s))
}

// RenameUnique moves src to dir/base.pdf, or base_1.pdf, base_2.pdf, ... when taken.
// An existing file is never overwritten.
func RenameUnique(src, dir, base string) (string, error) {
	for n := 0; n < maxSuffix; n++ {
		name := base + ".pdf"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.pdf", base, n)
		}
		dst := filepath.Join(dir, name)
		if dst == src {
			return dst, nil
		}

		// Link fails if dst exists, which closes the window between a Stat and a Rename.
		err := os.Link(src, dst)
		if err == nil {
			if err := os.Remove(src); err != nil {
				return dst, fmt.Errorf("failed to remove %s after linking: %w", src, err)
			}
			return dst, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}

		// Filesystems without hard links.
		if _, statErr := os.Lstat(dst); statErr == nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return "", fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
		}
		return dst, nil
	}
	return "", fmt.Errorf("no free name for %s in %s", base, dir)
}
