package config

import (
	"strings"
	"time"
)

// SiteConfig describes the published site.
type SiteConfig struct {
	Title   string `yaml:"title"`
	Domain  string `yaml:"domain"`             // custom domain written into the marker file
	BaseURL string `yaml:"base_url,omitempty"` // informational; the renderer owns templating
}

// SourceConfig identifies the content repository the pipeline checks out.
type SourceConfig struct {
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
	// Local, when set, skips checkout and renders an existing working copy.
	Local string `yaml:"local,omitempty"`
	// ContentDir is the directory of content documents inside the source tree.
	ContentDir string `yaml:"content_dir,omitempty"`
}

// AuthType enumerates supported authentication methods (stringly for YAML compatibility)
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Type     AuthType `yaml:"type"` // ssh|token|basic|none
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
	// TokenEnv names an environment variable holding the token. Preferred over
	// Token so credentials stay out of the configuration file.
	TokenEnv string `yaml:"token_env,omitempty"`
}

// IsZero reports whether no auth method is specified.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// NormalizeAuthType canonicalizes user input returning AuthTypeNone if unknown.
func NormalizeAuthType(raw string) AuthType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(AuthTypeSSH):
		return AuthTypeSSH
	case string(AuthTypeToken):
		return AuthTypeToken
	case string(AuthTypeBasic):
		return AuthTypeBasic
	default:
		return AuthTypeNone
	}
}

// RendererConfig describes the external renderer toolchain.
type RendererConfig struct {
	// Command is the renderer binary, resolved via PATH (e.g. "quarto", "hugo").
	Command string `yaml:"command"`
	// Version pins the toolchain. When set, preflight compares it against the
	// binary's reported version and fails the run on mismatch.
	Version string `yaml:"version,omitempty"`
	// Args are passed to the render invocation (default ["render"]).
	Args []string `yaml:"args,omitempty"`
	// Setup commands install the renderer's declared library dependencies.
	// Each entry runs in the source tree before render; any failure aborts.
	Setup []SetupCommand `yaml:"setup,omitempty"`
	// OutputDir is the renderer's output directory relative to the source tree.
	OutputDir string `yaml:"output_dir,omitempty"`
	// Timeout bounds a single render invocation (default 15m).
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetupCommand is one dependency-install command run during preflight.
type SetupCommand struct {
	Name string   `yaml:"name"`
	Run  []string `yaml:"run"` // argv form, no shell
}

// PublishConfig describes the hosting target.
type PublishConfig struct {
	URL       string      `yaml:"url"`              // hosting repository
	Branch    string      `yaml:"branch,omitempty"` // hosting branch (default gh-pages)
	Auth      *AuthConfig `yaml:"auth,omitempty"`
	Committer Identity    `yaml:"committer,omitempty"`
	// MarkerFile is the domain marker filename at the output root (default CNAME).
	MarkerFile string `yaml:"marker_file,omitempty"`
}

// Identity is the author/committer recorded on publish commits.
type Identity struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// DaemonConfig holds daemon-mode settings.
type DaemonConfig struct {
	ListenAddr  string        `yaml:"listen_addr,omitempty"`  // webhook listener (default :8787)
	MetricsAddr string        `yaml:"metrics_addr,omitempty"` // prometheus endpoint (default :9090)
	WebhookPath string        `yaml:"webhook_path,omitempty"` // default /webhook
	Secret      string        `yaml:"secret,omitempty"`       // webhook HMAC secret (optional)
	QuietWindow time.Duration `yaml:"quiet_window,omitempty"` // debounce quiet window (default 5s)
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`    // debounce max delay (default 30s)
	// History settings for the sqlite run store.
	HistoryPath      string        `yaml:"history_path,omitempty"`
	HistoryRetention time.Duration `yaml:"history_retention,omitempty"` // prune runs older than this (default 720h)
	PruneInterval    time.Duration `yaml:"prune_interval,omitempty"`    // how often pruning runs (default 6h)
}

// EventsConfig configures optional NATS run-lifecycle event publishing.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`     // NATS server URL
	Subject string `yaml:"subject,omitempty"` // base subject (default pagepress.runs)
}
