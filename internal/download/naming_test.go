package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "JaneDoe_12345", ArtifactName(" JaneDoe ", "12345"))
	assert.Equal(t, "A-B_1-2", ArtifactName("A/B", `1\2`))
	assert.Equal(t, "IVRS-N3123", IVRSName("N3123"))
}

func TestRenameUnique(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	writeFile(t, src)

	dst, err := RenameUnique(src, dir, "JaneDoe_12345")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "JaneDoe_12345.pdf"), dst)
	assert.NoFileExists(t, src)
}

func TestRenameUnique_Collision(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "JaneDoe_12345.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("first"), 0o644))

	src := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("second"), 0o644))

	dst, err := RenameUnique(src, dir, "JaneDoe_12345")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "JaneDoe_12345_1.pdf"), dst)

	first, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))

	second, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(second))

	third := filepath.Join(dir, "again.pdf")
	writeFile(t, third)
	dst, err = RenameUnique(third, dir, "JaneDoe_12345")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "JaneDoe_12345_2.pdf"), dst)
}

func TestRenameUnique_AlreadyNamed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IVRS-1.pdf")
	writeFile(t, src)

	dst, err := RenameUnique(src, dir, "IVRS-1")
	require.NoError(t, err)
	assert.Equal(t, src, dst)
	assert.FileExists(t, src)
}

func TestRenameUnique_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := RenameUnique(filepath.Join(dir, "gone.pdf"), dir, "X")
	assert.Error(t, err)
}
