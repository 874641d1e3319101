package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_EphemeralMode(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewManager(tempBase)

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	wsPath := mgr.Path()
	if wsPath == "" {
		t.Fatal("Path() returned empty string")
	}
	if !strings.Contains(filepath.Base(wsPath), "pagepress-") {
		t.Errorf("Expected timestamped directory, got: %s", wsPath)
	}
	if _, err := os.Stat(wsPath); os.IsNotExist(err) {
		t.Errorf("Workspace directory does not exist: %s", wsPath)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("Workspace directory still exists after cleanup: %s", wsPath)
	}
}

func TestManager_PersistentMode(t *testing.T) {
	tempBase := t.TempDir()
	mgr := NewPersistentManager(tempBase, "working")

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	expectedPath := filepath.Join(tempBase, "working")
	if mgr.Path() != expectedPath {
		t.Errorf("Expected path %s, got: %s", expectedPath, mgr.Path())
	}

	marker := filepath.Join(mgr.Path(), "marker.txt")
	if err := os.WriteFile(marker, []byte("persistent"), 0o600); err != nil {
		t.Fatalf("Failed to create marker file: %v", err)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("Persistent workspace was removed by cleanup: %v", err)
	}
}

func TestManager_SubdirsAndReset(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer func() { _ = mgr.Cleanup() }()

	if !strings.HasPrefix(mgr.SourceDir(), mgr.Path()) {
		t.Errorf("SourceDir outside workspace: %s", mgr.SourceDir())
	}

	if err := os.MkdirAll(mgr.PublishDir(), 0o750); err != nil {
		t.Fatalf("mkdir publish dir: %v", err)
	}
	stale := filepath.Join(mgr.PublishDir(), "stale.html")
	if err := os.WriteFile(stale, []byte("old"), 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	if err := mgr.ResetPublishDir(); err != nil {
		t.Fatalf("ResetPublishDir() failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale publish artifact survived reset")
	}
}

func TestManager_ResetRequiresCreate(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.ResetPublishDir(); err == nil {
		t.Fatal("expected error before Create()")
	}
}
