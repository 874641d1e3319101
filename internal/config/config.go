package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/hallvik/pagepress/internal/errors"
)

// Config represents the application configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Source   SourceConfig   `yaml:"source"`
	Renderer RendererConfig `yaml:"renderer"`
	Publish  PublishConfig  `yaml:"publish"`
	Daemon   *DaemonConfig  `yaml:"daemon,omitempty"`
	Events   *EventsConfig  `yaml:"events,omitempty"`
}

// Load loads configuration from the specified file, applies env overrides and defaults,
// and validates the result.
func Load(configPath string) (*Config, error) {
	// Load .env file if present; a missing file is not an error.
	loadEnvFile()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, apperrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source.Branch == "" {
		c.Source.Branch = "main"
	}
	if c.Source.ContentDir == "" {
		c.Source.ContentDir = "posts"
	}
	if c.Renderer.Command == "" {
		c.Renderer.Command = "quarto"
	}
	if len(c.Renderer.Args) == 0 {
		c.Renderer.Args = []string{"render"}
	}
	if c.Renderer.OutputDir == "" {
		c.Renderer.OutputDir = "_site"
	}
	if c.Renderer.Timeout <= 0 {
		c.Renderer.Timeout = 15 * time.Minute
	}
	if c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Publish.MarkerFile == "" {
		c.Publish.MarkerFile = "CNAME"
	}
	if c.Publish.Committer.Name == "" {
		c.Publish.Committer.Name = "pagepress"
	}
	if c.Publish.Committer.Email == "" {
		c.Publish.Committer.Email = "pagepress@localhost"
	}
	if c.Daemon != nil {
		if c.Daemon.ListenAddr == "" {
			c.Daemon.ListenAddr = ":8787"
		}
		if c.Daemon.MetricsAddr == "" {
			c.Daemon.MetricsAddr = ":9090"
		}
		if c.Daemon.WebhookPath == "" {
			c.Daemon.WebhookPath = "/webhook"
		}
		if c.Daemon.QuietWindow <= 0 {
			c.Daemon.QuietWindow = 5 * time.Second
		}
		if c.Daemon.MaxDelay <= 0 {
			c.Daemon.MaxDelay = 30 * time.Second
		}
		if c.Daemon.HistoryPath == "" {
			c.Daemon.HistoryPath = "pagepress-runs.db"
		}
		if c.Daemon.HistoryRetention <= 0 {
			c.Daemon.HistoryRetention = 30 * 24 * time.Hour
		}
		if c.Daemon.PruneInterval <= 0 {
			c.Daemon.PruneInterval = 6 * time.Hour
		}
	}
	if c.Events != nil {
		if c.Events.Subject == "" {
			c.Events.Subject = "pagepress.runs"
		}
	}
}

// Validate checks cross-field invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Site.Domain == "" {
		return apperrors.ConfigRequired("site.domain")
	}
	if c.Source.URL == "" && c.Source.Local == "" {
		return apperrors.ConfigRequired("source.url")
	}
	if c.Publish.URL == "" {
		return apperrors.ConfigRequired("publish.url")
	}
	if c.Events != nil && c.Events.Enabled && c.Events.URL == "" {
		return apperrors.ValidationFailed("events.url", "required when events are enabled")
	}
	return nil
}

// ResolveToken returns the credential for an auth block, preferring the
// environment variable named by TokenEnv over an inline token.
func ResolveToken(a *AuthConfig) string {
	if a == nil {
		return ""
	}
	if a.TokenEnv != "" {
		if v := os.Getenv(a.TokenEnv); v != "" {
			return v
		}
	}
	return a.Token
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Site: SiteConfig{
			Title:   "My Blog",
			Domain:  "blog.example.com",
			BaseURL: "https://blog.example.com",
		},
		Source: SourceConfig{
			URL:        "https://github.com/example/blog.git",
			Branch:     "main",
			ContentDir: "posts",
		},
		Renderer: RendererConfig{
			Command:   "quarto",
			Version:   "1.6.40",
			Args:      []string{"render"},
			OutputDir: "_site",
			Setup: []SetupCommand{
				{Name: "install-deps", Run: []string{"quarto", "check"}},
			},
		},
		Publish: PublishConfig{
			URL:    "https://github.com/example/blog.git",
			Branch: "gh-pages",
			Auth: &AuthConfig{
				Type:     AuthTypeToken,
				TokenEnv: "PAGEPRESS_PUBLISH_TOKEN",
			},
			Committer: Identity{Name: "pagepress", Email: "pagepress@example.com"},
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
