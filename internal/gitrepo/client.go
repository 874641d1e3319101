// Package gitrepo wraps go-git operations for the source checkout and the
// hosting-branch worktree.
package gitrepo

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/logfields"
)

// Client handles Git operations rooted in a workspace directory.
type Client struct {
	workspaceDir string
}

// NewClient creates a new Git client with the specified workspace directory.
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir}
}

// CloneSource clones the content repository into dir at the configured branch
// and returns the checked-out HEAD commit hash. Any existing directory is
// replaced so the checkout always reflects the triggering push.
func (c *Client) CloneSource(src config.SourceConfig, dir string) (string, error) {
	slog.Debug("Cloning source repository", logfields.URL(src.URL), logfields.Branch(src.Branch), logfields.Path(dir))

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to remove existing directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: src.URL}
	if src.Branch != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + src.Branch)
		cloneOptions.SingleBranch = true
	}
	if !src.Auth.IsZero() {
		auth, err := CreateAuth(src.Auth)
		if err != nil {
			return "", fmt.Errorf("failed to setup authentication: %w", err)
		}
		cloneOptions.Auth = auth
	}

	repository, err := git.PlainClone(dir, false, cloneOptions)
	if err != nil {
		return "", ClassifyTransportError("clone", src.URL, err)
	}

	ref, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD after clone: %w", err)
	}

	commit := ref.Hash().String()
	slog.Info("Source repository cloned",
		logfields.URL(src.URL),
		logfields.Commit(commit[:8]),
		logfields.Path(dir))
	return commit, nil
}

// UpdateSource fetches and resets an existing checkout, or clones if missing.
// Used by the daemon's persistent workspace to avoid full reclones.
func (c *Client) UpdateSource(src config.SourceConfig, dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		slog.Debug("Source checkout missing, cloning", logfields.Path(dir))
		return c.CloneSource(src, dir)
	}

	repository, err := git.PlainOpen(dir)
	if err != nil {
		slog.Warn("Corrupt source checkout, recloning", logfields.Path(dir), logfields.Error(err))
		return c.CloneSource(src, dir)
	}

	fetchOptions := &git.FetchOptions{RemoteName: "origin", Force: true}
	if !src.Auth.IsZero() {
		auth, aerr := CreateAuth(src.Auth)
		if aerr != nil {
			return "", fmt.Errorf("failed to setup authentication: %w", aerr)
		}
		fetchOptions.Auth = auth
	}
	if err := repository.Fetch(fetchOptions); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", ClassifyTransportError("fetch", src.URL, err)
	}

	remoteRef, err := repository.Reference(plumbing.ReferenceName("refs/remotes/origin/"+src.Branch), true)
	if err != nil {
		return "", fmt.Errorf("failed to resolve origin/%s: %w", src.Branch, err)
	}

	worktree, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("failed to reset to origin/%s: %w", src.Branch, err)
	}

	commit := remoteRef.Hash().String()
	slog.Info("Source repository updated", logfields.URL(src.URL), logfields.Commit(commit[:8]))
	return commit, nil
}

// HeadCommit returns the HEAD commit hash for a local working copy. Used in
// local mode where no checkout is performed.
func (c *Client) HeadCommit(dir string) (string, error) {
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	ref, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}
