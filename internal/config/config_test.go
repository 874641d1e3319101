package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hallvik/pagepress/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagepress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
site:
  title: Example
  domain: blog.example.com
source:
  url: https://github.com/example/blog.git
publish:
  url: https://github.com/example/blog.git
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Source.Branch)
	assert.Equal(t, "posts", cfg.Source.ContentDir)
	assert.Equal(t, "quarto", cfg.Renderer.Command)
	assert.Equal(t, []string{"render"}, cfg.Renderer.Args)
	assert.Equal(t, "_site", cfg.Renderer.OutputDir)
	assert.Equal(t, 15*time.Minute, cfg.Renderer.Timeout)
	assert.Equal(t, "gh-pages", cfg.Publish.Branch)
	assert.Equal(t, "CNAME", cfg.Publish.MarkerFile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
}

func TestValidateRequiredFields(t *testing.T) {
	path := writeConfig(t, `
site:
  title: Example
source:
  url: https://github.com/example/blog.git
publish:
  url: https://github.com/example/blog.git
`)
	_, err := Load(path)
	require.Error(t, err, "missing site.domain must fail")

	path = writeConfig(t, `
site:
  domain: blog.example.com
source:
  url: https://github.com/example/blog.git
`)
	_, err = Load(path)
	require.Error(t, err, "missing publish.url must fail")
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TEST_BLOG_DOMAIN", "env.example.com")
	path := writeConfig(t, `
site:
  domain: ${TEST_BLOG_DOMAIN}
source:
  url: https://github.com/example/blog.git
publish:
  url: https://github.com/example/blog.git
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.Site.Domain)
}

func TestResolveToken(t *testing.T) {
	t.Setenv("TEST_PUBLISH_TOKEN", "s3cret")

	assert.Equal(t, "", ResolveToken(nil))
	assert.Equal(t, "inline", ResolveToken(&AuthConfig{Type: AuthTypeToken, Token: "inline"}))
	assert.Equal(t, "s3cret", ResolveToken(&AuthConfig{Type: AuthTypeToken, TokenEnv: "TEST_PUBLISH_TOKEN", Token: "inline"}))
}

func TestNormalizeAuthType(t *testing.T) {
	assert.Equal(t, AuthTypeToken, NormalizeAuthType(" Token "))
	assert.Equal(t, AuthTypeSSH, NormalizeAuthType("SSH"))
	assert.Equal(t, AuthTypeNone, NormalizeAuthType("bogus"))
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagepress.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)

	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "blog.example.com", cfg.Site.Domain)
}

func TestDaemonDefaults(t *testing.T) {
	path := writeConfig(t, `
site:
  domain: blog.example.com
source:
  url: https://github.com/example/blog.git
publish:
  url: https://github.com/example/blog.git
daemon: {}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Daemon)
	assert.Equal(t, ":8787", cfg.Daemon.ListenAddr)
	assert.Equal(t, "/webhook", cfg.Daemon.WebhookPath)
	assert.Equal(t, 5*time.Second, cfg.Daemon.QuietWindow)
	assert.Equal(t, 30*time.Second, cfg.Daemon.MaxDelay)
	assert.Equal(t, 6*time.Hour, cfg.Daemon.PruneInterval)
}
