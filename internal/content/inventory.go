// Package content enumerates authored documents for run reports and the
// status command. It reads only each document's frontmatter metadata header;
// bodies are opaque payload owned by the external renderer.
package content

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
)

// Document describes one authored content document.
type Document struct {
	Path       string    // path relative to the content directory
	Title      string
	Author     string
	Date       time.Time
	Categories []string
	Draft      bool
}

// metaEnvelope matches the metadata header each content document carries.
type metaEnvelope struct {
	Title      string    `yaml:"title"`
	Author     string    `yaml:"author"`
	Date       time.Time `yaml:"date"`
	Categories []string  `yaml:"categories"`
	Image      string    `yaml:"image"`
	Draft      bool      `yaml:"draft"`
}

// documentExtensions are the source formats the external renderer recognizes.
var documentExtensions = map[string]bool{
	".md":  true,
	".qmd": true,
}

// Scan walks contentDir and returns a descriptor per recognized document,
// sorted by relative path. Documents with unreadable headers are returned with
// only their path filled in; Scan never fails a run over malformed metadata,
// that is the renderer's call to make.
func Scan(contentDir string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != contentDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !documentExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		rel, rerr := filepath.Rel(contentDir, path)
		if rerr != nil {
			return rerr
		}

		doc := Document{Path: rel}
		if meta, merr := readHeader(path); merr == nil {
			doc.Title = meta.Title
			doc.Author = meta.Author
			doc.Date = meta.Date
			doc.Categories = meta.Categories
			doc.Draft = meta.Draft
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan content directory %s: %w", contentDir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// readHeader parses only the frontmatter header of a document.
func readHeader(path string) (*metaEnvelope, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var meta metaEnvelope
	if _, err := frontmatter.Parse(f, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Published filters out drafts.
func Published(docs []Document) []Document {
	var out []Document
	for _, d := range docs {
		if !d.Draft {
			out = append(out, d)
		}
	}
	return out
}
