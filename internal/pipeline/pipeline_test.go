package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallvik/pagepress/internal/config"
	apperrors "github.com/hallvik/pagepress/internal/errors"
	"github.com/hallvik/pagepress/internal/workspace"
)

const testPage = `<!DOCTYPE html><html><head><title>p</title></head><body>post</body></html>`

// newSourceTree builds a local source tree with two documents, one image
// asset, and a prebuilt site the fake renderer copies into place. Using a
// shell one-liner as the "renderer" keeps the external tool a black box while
// exercising the real invocation path.
func newSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	posts := filepath.Join(dir, "posts")
	require.NoError(t, os.MkdirAll(posts, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(posts, "first.qmd"),
		[]byte("---\ntitle: First\nauthor: Jo\n---\n\nbody\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(posts, "second.md"),
		[]byte("---\ntitle: Second\nauthor: Jo\n---\n\nbody\n"), 0o644))

	prebuilt := filepath.Join(dir, "prebuilt")
	require.NoError(t, os.MkdirAll(filepath.Join(prebuilt, "posts", "first"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(prebuilt, "posts", "second"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(prebuilt, "images"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(prebuilt, "index.html"), []byte(testPage), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(prebuilt, "posts", "first", "index.html"), []byte(testPage), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(prebuilt, "posts", "second", "index.html"), []byte(testPage), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(prebuilt, "images", "hero.png"), []byte("png-ish"), 0o644))

	return dir
}

func newHostingRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func testConfig(t *testing.T, sourceDir, hostingURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Site:   config.SiteConfig{Title: "Test Blog", Domain: "blog.example.com"},
		Source: config.SourceConfig{Local: sourceDir, ContentDir: "posts", Branch: "main"},
		Renderer: config.RendererConfig{
			Command:   "sh",
			Args:      []string{"-c", "mkdir -p _site && cp -r prebuilt/. _site/"},
			OutputDir: "_site",
		},
		Publish: config.PublishConfig{
			URL:        hostingURL,
			Branch:     "gh-pages",
			MarkerFile: "CNAME",
			Committer:  config.Identity{Name: "pagepress", Email: "pagepress@example.com"},
		},
	}
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, opts ...Option) (*Pipeline, *workspace.Manager) {
	t.Helper()
	ws := workspace.NewManager(t.TempDir())
	require.NoError(t, ws.Create())
	t.Cleanup(func() { _ = ws.Cleanup() })
	return New(cfg, ws, opts...), ws
}

func hostingBranchExists(t *testing.T, hostingURL string) bool {
	t.Helper()
	repo, err := git.PlainOpen(hostingURL)
	require.NoError(t, err)
	_, err = repo.Reference(plumbing.ReferenceName("refs/heads/gh-pages"), true)
	return err == nil
}

func TestRunEndToEnd(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	p, _ := newTestPipeline(t, testConfig(t, source, hosting))

	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.True(t, report.Published)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 2, report.Assets, "image asset plus marker file")
	require.True(t, hostingBranchExists(t, hosting))

	// The hosting branch serves exactly the rendered output plus the marker.
	checkout := t.TempDir()
	_, err = git.PlainClone(checkout, false, &git.CloneOptions{
		URL:           hosting,
		ReferenceName: plumbing.ReferenceName("refs/heads/gh-pages"),
		SingleBranch:  true,
	})
	require.NoError(t, err)

	marker, err := os.ReadFile(filepath.Join(checkout, "CNAME"))
	require.NoError(t, err)
	assert.Equal(t, "blog.example.com\n", string(marker))

	for _, name := range []string{"index.html", "posts/first/index.html", "posts/second/index.html", "images/hero.png"} {
		_, statErr := os.Stat(filepath.Join(checkout, filepath.FromSlash(name)))
		assert.NoError(t, statErr, "expected %s in hosting branch", name)
	}
}

func TestRenderFailureNeverPublishes(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	cfg := testConfig(t, source, hosting)
	cfg.Renderer.Args = []string{"-c", "echo 'ERROR: malformed document' >&2; exit 1"}

	p, _ := newTestPipeline(t, cfg)
	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)

	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.False(t, report.Published)
	assert.Equal(t, StageErrorFatal, report.StageErrorKinds["render"])
	_, publishRan := report.StageDurations["publish"]
	assert.False(t, publishRan, "publish stage must never execute after a render failure")
	assert.False(t, hostingBranchExists(t, hosting), "no write may reach the hosting target")
	assert.Equal(t, apperrors.CategoryRender, apperrors.GetCategory(err))
}

func TestDependencyFailureAbortsBeforeRender(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	cfg := testConfig(t, source, hosting)
	cfg.Renderer.Setup = []config.SetupCommand{
		{Name: "install-deps", Run: []string{"sh", "-c", "exit 1"}},
	}

	p, _ := newTestPipeline(t, cfg)
	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)

	assert.Equal(t, StageErrorFatal, report.StageErrorKinds["preflight"])
	_, renderRan := report.StageDurations["render"]
	assert.False(t, renderRan, "render must not run after a dependency failure")
	assert.False(t, hostingBranchExists(t, hosting))
}

func TestStampFailureBlocksPublish(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	cfg := testConfig(t, source, hosting)
	cfg.Site.Domain = "not a domain"

	p, _ := newTestPipeline(t, cfg)
	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)

	assert.Equal(t, StageErrorFatal, report.StageErrorKinds["stamp"])
	assert.False(t, hostingBranchExists(t, hosting))
	assert.Equal(t, apperrors.CategoryStamp, apperrors.GetCategory(err))
}

// Stage failures surface as categorized errors so the CLI adapter can map
// them to distinct exit codes instead of a blanket 1.
func TestStageFailuresMapToExitCodes(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	adapter := apperrors.NewCLIErrorAdapter(false, nil)

	cfg := testConfig(t, source, hosting)
	cfg.Renderer.Args = []string{"-c", "exit 1"}
	p, _ := newTestPipeline(t, cfg)
	_, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)
	assert.Equal(t, 11, adapter.ExitCodeFor(err), "render failures are pipeline errors")

	cfg = testConfig(t, source, hosting)
	cfg.Renderer.Setup = []config.SetupCommand{{Name: "deps", Run: []string{"sh", "-c", "exit 1"}}}
	p, _ = newTestPipeline(t, cfg)
	_, err = p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryPreflight, apperrors.GetCategory(err))
	assert.Equal(t, 11, adapter.ExitCodeFor(err))

	cfg = testConfig(t, source, hosting)
	cfg.Publish.URL = filepath.Join(t.TempDir(), "no-such-repo")
	p, _ = newTestPipeline(t, cfg)
	_, err = p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryPublish, apperrors.GetCategory(err))
	assert.Equal(t, 8, adapter.ExitCodeFor(err), "publish failures are external system errors")
}

func TestSkipPublish(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	p, _ := newTestPipeline(t, testConfig(t, source, hosting), WithSkipPublish())

	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.False(t, report.Published)
	assert.False(t, hostingBranchExists(t, hosting))
}

func TestCanceledContext(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	p, _ := newTestPipeline(t, testConfig(t, source, hosting))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, Trigger{Branch: "main", Reason: "cli"})
	require.Error(t, err)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.False(t, hostingBranchExists(t, hosting))
}

func TestInventoryFailureIsOnlyAWarning(t *testing.T) {
	source := newSourceTree(t)
	hosting := newHostingRepo(t)
	cfg := testConfig(t, source, hosting)
	cfg.Source.ContentDir = "no-such-dir"

	p, _ := newTestPipeline(t, cfg)
	report, err := p.Run(context.Background(), Trigger{Branch: "main", Reason: "cli"})
	require.NoError(t, err, "inventory problems must not abort a run")

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.True(t, report.Published)
	assert.NotEmpty(t, report.Warnings)
}
