// Package sitecheck inspects rendered output before publish. It works only on
// the renderer's HTML output, never on source documents, and exists to uphold
// the no-partial-site-publish guarantee.
package sitecheck

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Summary describes the rendered output tree.
type Summary struct {
	Pages  []string // relative paths of HTML pages
	Assets int      // count of non-HTML files
}

// Inspect walks outputDir, parses every HTML page and counts assets. A page
// that fails to parse, or an empty output tree, is an error: an output that
// the host cannot serve must never be published.
func Inspect(outputDir string) (*Summary, error) {
	summary := &Summary{}

	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(outputDir, path)
		if rerr != nil {
			return rerr
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".html" && ext != ".htm" {
			summary.Assets++
			return nil
		}

		if perr := parsePage(path); perr != nil {
			return fmt.Errorf("page %s is not servable: %w", rel, perr)
		}
		summary.Pages = append(summary.Pages, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(summary.Pages) == 0 {
		return nil, fmt.Errorf("rendered output contains no HTML pages")
	}
	return summary, nil
}

// parsePage checks that a rendered page actually contains HTML markup. The
// tokenizer repairs almost anything, so the meaningful signal is element
// tokens: a file with none is plain text wearing an .html extension, which
// a renderer never legitimately produces.
func parsePage(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	z := html.NewTokenizer(f)
	elements := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("tokenize failed: %w", err)
			}
			if elements == 0 {
				return fmt.Errorf("no HTML elements")
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			elements++
		}
	}
}
