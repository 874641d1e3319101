package stamper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Write(dir, "CNAME", "blog.example.com"))
	first, err := os.ReadFile(filepath.Join(dir, "CNAME"))
	require.NoError(t, err)

	require.NoError(t, Write(dir, "CNAME", "blog.example.com"))
	second, err := os.ReadFile(filepath.Join(dir, "CNAME"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "stamping twice must yield byte-identical content")
	assert.Equal(t, "blog.example.com\n", string(first))
}

func TestWriteOverwritesStaleMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CNAME"), []byte("old.example.com\nextra junk\n"), 0o644))

	require.NoError(t, Write(dir, "CNAME", "blog.example.com"))

	data, err := os.ReadFile(filepath.Join(dir, "CNAME"))
	require.NoError(t, err)
	assert.Equal(t, "blog.example.com\n", string(data), "marker is overwritten, never merged")
}

func TestNormalizeDomain(t *testing.T) {
	got, err := NormalizeDomain("  blog.example.com ")
	require.NoError(t, err)
	assert.Equal(t, "blog.example.com", got)

	got, err = NormalizeDomain("blogg.bücher.example")
	require.NoError(t, err)
	assert.Equal(t, "blogg.xn--bcher-kva.example", got)

	_, err = NormalizeDomain("")
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()

	err := Check(dir, "CNAME", "blog.example.com")
	require.Error(t, err, "missing marker must fail the check")
	assert.Contains(t, err.Error(), "missing")

	require.NoError(t, Write(dir, "CNAME", "blog.example.com"))
	require.NoError(t, Check(dir, "CNAME", "blog.example.com"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "CNAME"), []byte("tampered.example.com\n"), 0o644))
	err = Check(dir, "CNAME", "blog.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}
