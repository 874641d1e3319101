package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hallvik/pagepress/internal/logfields"
)

// Manager handles run workspace directories. One-shot CLI runs use ephemeral
// timestamped directories that are removed afterwards; the daemon uses a fixed
// persistent directory so checkouts can be updated incrementally.
type Manager struct {
	baseDir    string
	dir        string
	persistent bool
}

// NewManager creates a workspace manager with ephemeral timestamped directories.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager creates a workspace manager with a fixed directory
// (baseDir/subdirName) that Cleanup leaves in place.
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		dir:        filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create materializes the workspace directory.
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.dir, 0o750); err != nil {
			return fmt.Errorf("failed to create persistent workspace directory: %w", err)
		}
		slog.Info("Using persistent workspace", logfields.Path(m.dir))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	dir := filepath.Join(m.baseDir, fmt.Sprintf("pagepress-%s", timestamp))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.dir = dir
	slog.Info("Created workspace", logfields.Path(dir))
	return nil
}

// Path returns the workspace directory.
func (m *Manager) Path() string { return m.dir }

// SourceDir returns the checkout location for the content repository.
func (m *Manager) SourceDir() string { return filepath.Join(m.dir, "source") }

// PublishDir returns the scratch worktree location for the hosting branch.
func (m *Manager) PublishDir() string { return filepath.Join(m.dir, "publish") }

// Cleanup removes the workspace directory. Persistent workspaces are kept.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Skipping cleanup for persistent workspace", logfields.Path(m.dir))
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Info("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}

// ResetPublishDir removes any previous scratch worktree so a run always
// publishes from a clean slate. The rendered artifact of a failed publish is
// discarded, never cached for the next run.
func (m *Manager) ResetPublishDir() error {
	if m.dir == "" {
		return fmt.Errorf("workspace not created")
	}
	if err := os.RemoveAll(m.PublishDir()); err != nil {
		return fmt.Errorf("failed to reset publish dir: %w", err)
	}
	return nil
}
