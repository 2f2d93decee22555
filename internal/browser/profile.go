package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// savePDFAppState preselects "Save as PDF" in Chrome's print preview so kiosk printing writes a file.
const savePDFAppState = `{"recentDestinations":[{"id":"Save as PDF","origin":"local","account":""}],"selectedDestinationId":"Save as PDF","version":2}`

// Preferences returns the Chrome profile preferences for silent PDF download and printing into downloadDir.
func Preferences(downloadDir string) map[string]any {
	return map[string]any{
		"plugins": map[string]any{
			"always_open_pdf_externally": true,
		},
		"download": map[string]any{
			"default_directory":         downloadDir,
			"prompt_for_download":       false,
			"directory_upgrade":         true,
			"open_pdf_in_system_reader": false,
		},
		"safebrowsing": map[string]any{
			"enabled":                     true,
			"disable_download_protection": true,
		},
		"printing": map[string]any{
			"default_directory": downloadDir,
			"print_preview_sticky_settings": map[string]any{
				"appState": savePDFAppState,
			},
		},
		"savefile": map[string]any{
			"default_directory": downloadDir,
		},
	}
}

// WritePreferences writes Default/Preferences into a fresh Chrome user data directory.
func WritePreferences(profileDir, downloadDir string) error {
	defaultDir := filepath.Join(profileDir, "Default")
	if err := os.MkdirAll(defaultDir, 0o755); err != nil {
		return fmt.Errorf("failed to create chrome profile directory: %w", err)
	}
	data, err := json.MarshalIndent(Preferences(downloadDir), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chrome preferences: %w", err)
	}
	if err := os.WriteFile(filepath.Join(defaultDir, "Preferences"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write chrome preferences: %w", err)
	}
	return nil
}
