package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bill-agent/internal/browser"
	"github.com/jonathan/bill-agent/internal/browser/browsertest"
)

func TestDumpPageSource(t *testing.T) {
	f := browsertest.New()
	f.Pages[f.Current] = "<html><body>bill</body></html>"
	path := filepath.Join(t.TempDir(), "debug_page_source.html")

	require.NoError(t, browser.DumpPageSource(context.Background(), f, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>bill</body></html>", string(data))
}

func TestDumpPageSource_ReadFailure(t *testing.T) {
	f := browsertest.New()
	f.Fail["page source"] = errors.New("target closed")

	err := browser.DumpPageSource(context.Background(), f, filepath.Join(t.TempDir(), "x.html"))
	assert.ErrorContains(t, err, "failed to read page source")
}
