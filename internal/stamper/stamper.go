// Package stamper writes the custom-domain marker file into rendered output.
// The static host reads this file to bind the custom domain, so it must exist
// before anything is published and must always contain exactly one line.
package stamper

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/net/idna"

	"github.com/hallvik/pagepress/internal/logfields"
)

// NormalizeDomain canonicalizes the configured domain for the marker file.
// Unicode domains are converted to their ASCII (punycode) form so the hosting
// provider resolves them regardless of how the author typed them.
func NormalizeDomain(domain string) (string, error) {
	trimmed := bytes.TrimSpace([]byte(domain))
	if len(trimmed) == 0 {
		return "", fmt.Errorf("domain is empty")
	}
	ascii, err := idna.Lookup.ToASCII(string(trimmed))
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	return ascii, nil
}

// Write stamps the marker file into outputDir. Idempotent: re-running always
// produces byte-identical content, and any existing marker is overwritten,
// never merged.
func Write(outputDir, markerFile, domain string) error {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return err
	}

	path := filepath.Join(outputDir, markerFile)
	content := []byte(normalized + "\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write marker file: %w", err)
	}

	slog.Info("Domain marker stamped", logfields.Domain(normalized), logfields.Path(path))
	return nil
}

// Check verifies the marker file exists in outputDir with exactly the expected
// content. Publish treats a failed check as a hard precondition violation.
func Check(outputDir, markerFile, domain string) error {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return err
	}

	path := filepath.Join(outputDir, markerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("marker file %s missing from output", markerFile)
		}
		return fmt.Errorf("failed to read marker file: %w", err)
	}

	expected := []byte(normalized + "\n")
	if !bytes.Equal(data, expected) {
		return fmt.Errorf("marker file %s content mismatch: expected %q, found %q", markerFile, string(expected), string(data))
	}
	return nil
}
