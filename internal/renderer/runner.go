// Package renderer invokes the external static-site renderer. The renderer is
// a black box: this package only prepares its environment, runs it, and maps
// its exit status onto the pipeline's error model. Document parsing,
// templating and asset handling are entirely the renderer's concern.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/logfields"
)

// Runner executes the configured renderer toolchain against a source tree.
type Runner struct {
	cfg config.RendererConfig

	// lookPath and runCommand are swappable for tests.
	lookPath   func(file string) (string, error)
	runCommand func(ctx context.Context, dir string, argv []string) ([]byte, error)
}

// NewRunner creates a renderer runner for the given configuration.
func NewRunner(cfg config.RendererConfig) *Runner {
	return &Runner{
		cfg:        cfg,
		lookPath:   exec.LookPath,
		runCommand: runCommand,
	}
}

func runCommand(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Preflight verifies the renderer runtime before anything renders: the binary
// must be on PATH, its version must match the pin when one is configured, and
// every setup command must succeed. Any failure aborts the run; a partial
// environment must never proceed to render.
func (r *Runner) Preflight(ctx context.Context, sourceDir string) error {
	if _, err := r.lookPath(r.cfg.Command); err != nil {
		return fmt.Errorf("renderer binary %q not found in PATH: %w", r.cfg.Command, err)
	}

	if r.cfg.Version != "" {
		out, err := r.runCommand(ctx, sourceDir, []string{r.cfg.Command, "--version"})
		if err != nil {
			return fmt.Errorf("failed to query renderer version: %w", err)
		}
		reported := strings.TrimSpace(string(out))
		if !strings.Contains(reported, r.cfg.Version) {
			return fmt.Errorf("renderer version mismatch: pinned %q, binary reports %q", r.cfg.Version, reported)
		}
		slog.Debug("Renderer version verified", slog.String("pinned", r.cfg.Version), slog.String("reported", reported))
	}

	for _, setup := range r.cfg.Setup {
		if len(setup.Run) == 0 {
			continue
		}
		slog.Info("Running renderer setup command", slog.String("name", setup.Name))
		out, err := r.runCommand(ctx, sourceDir, setup.Run)
		if err != nil {
			return fmt.Errorf("setup command %q failed: %w\n%s", setup.Name, err, string(out))
		}
	}

	return nil
}

// Render invokes the renderer on the source tree and returns the absolute
// output directory. A non-zero exit aborts; the renderer's combined output is
// included in the error so a failed run's log explains what broke.
func (r *Runner) Render(ctx context.Context, sourceDir string) (string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	argv := append([]string{r.cfg.Command}, r.cfg.Args...)
	slog.Info("Invoking renderer", slog.String("command", strings.Join(argv, " ")), logfields.Path(sourceDir))

	out, err := r.runCommand(ctx, sourceDir, argv)
	if err != nil {
		return "", fmt.Errorf("renderer exited with error: %w\n%s", err, string(out))
	}

	outputDir := filepath.Join(sourceDir, r.cfg.OutputDir)
	info, err := os.Stat(outputDir)
	if err != nil {
		return "", fmt.Errorf("renderer reported success but output directory %s is missing: %w", outputDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("renderer output path %s is not a directory", outputDir)
	}

	slog.Info("Renderer completed", logfields.Path(outputDir))
	return outputDir, nil
}
