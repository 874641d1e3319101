package sitecheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const page = `<!DOCTYPE html><html><head><title>Post</title></head><body><h1>Post</h1></body></html>`

func TestInspectCountsPagesAndAssets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", page)
	writeFile(t, dir, "posts/first-post/index.html", page)
	writeFile(t, dir, "images/hero.png", "binary-ish")
	writeFile(t, dir, "styles.css", "body{}")

	summary, err := Inspect(dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"index.html",
		filepath.Join("posts", "first-post", "index.html"),
	}, summary.Pages)
	assert.Equal(t, 2, summary.Assets)
}

func TestInspectEmptyOutputFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "styles.css", "body{}")

	_, err := Inspect(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no HTML pages")
}

func TestInspectAcceptsFragmentPages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", page)
	// Fragments still carry element markup and browsers serve them fine.
	writeFile(t, dir, "fragment.html", `<head><meta charset="utf-8"></head>`)

	summary, err := Inspect(dir)
	require.NoError(t, err)
	assert.Len(t, summary.Pages, 2)
}

func TestInspectRejectsMarkupFreePage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", page)
	// A renderer crash can leave a log dump or raw source under an .html
	// name; such a file has no element markup at all.
	writeFile(t, dir, "broken.html", "Error: renderer crashed\nstack trace follows")

	_, err := Inspect(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.html")
	assert.Contains(t, err.Error(), "no HTML elements")
}

func TestInspectMissingDir(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
