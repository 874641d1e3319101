package renderer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallvik/pagepress/internal/config"
)

type fakeExec struct {
	calls     [][]string
	responses map[string]fakeResponse
}

type fakeResponse struct {
	out []byte
	err error
}

func (f *fakeExec) run(_ context.Context, _ string, argv []string) ([]byte, error) {
	f.calls = append(f.calls, argv)
	if resp, ok := f.responses[strings.Join(argv, " ")]; ok {
		return resp.out, resp.err
	}
	return nil, nil
}

func newTestRunner(cfg config.RendererConfig, fe *fakeExec) *Runner {
	r := NewRunner(cfg)
	r.lookPath = func(string) (string, error) { return "/usr/bin/" + cfg.Command, nil }
	r.runCommand = fe.run
	return r
}

func TestPreflightMissingBinary(t *testing.T) {
	r := NewRunner(config.RendererConfig{Command: "quarto"})
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	err := r.Preflight(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
}

func TestPreflightVersionPin(t *testing.T) {
	fe := &fakeExec{responses: map[string]fakeResponse{
		"quarto --version": {out: []byte("1.6.40\n")},
	}}
	r := newTestRunner(config.RendererConfig{Command: "quarto", Version: "1.6.40"}, fe)
	require.NoError(t, r.Preflight(context.Background(), t.TempDir()))

	fe.responses["quarto --version"] = fakeResponse{out: []byte("1.5.1\n")}
	err := r.Preflight(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version mismatch")
}

func TestPreflightSetupFailureAborts(t *testing.T) {
	fe := &fakeExec{responses: map[string]fakeResponse{
		"quarto check": {out: []byte("missing dependency"), err: errors.New("exit status 1")},
	}}
	r := newTestRunner(config.RendererConfig{
		Command: "quarto",
		Setup: []config.SetupCommand{
			{Name: "check-deps", Run: []string{"quarto", "check"}},
			{Name: "never-runs", Run: []string{"quarto", "install"}},
		},
	}, fe)

	err := r.Preflight(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check-deps")

	// Fail-fast: the second setup command must not have run.
	for _, call := range fe.calls {
		assert.NotEqual(t, []string{"quarto", "install"}, call)
	}
}

func TestRenderSuccess(t *testing.T) {
	sourceDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sourceDir, "_site"), 0o750))

	fe := &fakeExec{responses: map[string]fakeResponse{}}
	r := newTestRunner(config.RendererConfig{Command: "quarto", Args: []string{"render"}, OutputDir: "_site"}, fe)

	out, err := r.Render(context.Background(), sourceDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sourceDir, "_site"), out)
	require.Len(t, fe.calls, 1)
	assert.Equal(t, []string{"quarto", "render"}, fe.calls[0])
}

func TestRenderFailureIncludesOutput(t *testing.T) {
	fe := &fakeExec{responses: map[string]fakeResponse{
		"quarto render": {out: []byte("ERROR in posts/broken.qmd"), err: errors.New("exit status 1")},
	}}
	r := newTestRunner(config.RendererConfig{Command: "quarto", Args: []string{"render"}, OutputDir: "_site"}, fe)

	_, err := r.Render(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posts/broken.qmd")
}

func TestRenderMissingOutputDir(t *testing.T) {
	fe := &fakeExec{responses: map[string]fakeResponse{}}
	r := newTestRunner(config.RendererConfig{Command: "quarto", Args: []string{"render"}, OutputDir: "_site"}, fe)

	_, err := r.Render(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output directory")
}
