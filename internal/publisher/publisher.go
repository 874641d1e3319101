// Package publisher pushes stamped renderer output to the hosting branch.
// Publish is a full-directory replace: after a successful push the hosting
// branch holds exactly the new output plus the domain marker, with no stale
// files from earlier runs.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/gitrepo"
	"github.com/hallvik/pagepress/internal/logfields"
)

// ErrMarkerMissing is returned when publish is attempted without a stamped
// domain marker. The marker is a hard precondition, not best-effort.
var ErrMarkerMissing = errors.New("domain marker file missing from output; refusing to publish")

// Publisher writes rendered output to the hosting branch.
type Publisher struct {
	cfg config.PublishConfig
}

// New creates a publisher for the given hosting target.
func New(cfg config.PublishConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Publish replaces the hosting branch's content set with outputDir, using
// worktreeDir as a scratch checkout. sourceCommit is recorded in the commit
// message for traceability. No retry on failure: a failed publish discards the
// artifact and the next push re-renders from scratch.
func (p *Publisher) Publish(ctx context.Context, outputDir, worktreeDir, sourceCommit string) error {
	if _, err := os.Stat(filepath.Join(outputDir, p.cfg.MarkerFile)); err != nil {
		return ErrMarkerMissing
	}

	auth, err := gitrepo.CreateAuth(p.cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to setup publish authentication: %w", err)
	}

	repo, worktree, err := p.prepareWorktree(ctx, worktreeDir, auth)
	if err != nil {
		return err
	}

	if err := clearWorktree(worktreeDir); err != nil {
		return fmt.Errorf("failed to clear hosting worktree: %w", err)
	}
	if err := copyTree(outputDir, worktreeDir); err != nil {
		return fmt.Errorf("failed to copy rendered output: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage published files: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		slog.Info("Hosting branch already matches rendered output, nothing to publish",
			logfields.Branch(p.cfg.Branch))
		return nil
	}

	message := "publish site"
	if sourceCommit != "" {
		message = fmt.Sprintf("publish site from %s", shortCommit(sourceCommit))
	}
	sig := &object.Signature{Name: p.cfg.Committer.Name, Email: p.cfg.Committer.Email, When: time.Now()}
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit published files: %w", err)
	}

	refSpec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", p.cfg.Branch, p.cfg.Branch))
	pushErr := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitcfg.RefSpec{refSpec},
		Auth:       auth,
	})
	if pushErr != nil && !errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
		return gitrepo.ClassifyTransportError("push", p.cfg.URL, pushErr)
	}

	slog.Info("Published to hosting branch",
		logfields.URL(p.cfg.URL),
		logfields.Branch(p.cfg.Branch),
		logfields.Commit(shortCommit(sourceCommit)))
	return nil
}

// prepareWorktree checks out the hosting branch into worktreeDir, creating the
// branch when the remote does not have it yet.
func (p *Publisher) prepareWorktree(ctx context.Context, worktreeDir string, auth transport.AuthMethod) (*git.Repository, *git.Worktree, error) {
	cloneOptions := &git.CloneOptions{
		URL:           p.cfg.URL,
		ReferenceName: plumbing.ReferenceName("refs/heads/" + p.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	}

	repo, err := git.PlainCloneContext(ctx, worktreeDir, false, cloneOptions)
	switch {
	case err == nil:
		// existing hosting branch checked out
	case isMissingBranch(err):
		slog.Info("Hosting branch does not exist yet, creating it", logfields.Branch(p.cfg.Branch))
		repo, err = p.initHostingBranch(worktreeDir)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("failed to checkout hosting branch: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open hosting worktree: %w", err)
	}
	return repo, worktree, nil
}

// initHostingBranch initializes an empty repository whose first commit will
// create the hosting branch on push.
func (p *Publisher) initHostingBranch(worktreeDir string) (*git.Repository, error) {
	if err := os.MkdirAll(worktreeDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create hosting worktree: %w", err)
	}
	repo, err := git.PlainInit(worktreeDir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init hosting worktree: %w", err)
	}
	if _, err := repo.CreateRemote(&gitcfg.RemoteConfig{Name: "origin", URLs: []string{p.cfg.URL}}); err != nil {
		return nil, fmt.Errorf("failed to configure hosting remote: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName("refs/heads/"+p.cfg.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to point HEAD at hosting branch: %w", err)
	}
	return repo, nil
}

// isMissingBranch reports whether a clone failed because the hosting branch or
// repository content does not exist yet.
func isMissingBranch(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return true
	}
	l := strings.ToLower(err.Error())
	return strings.Contains(l, "reference not found") || strings.Contains(l, "couldn't find remote ref")
}

// clearWorktree removes everything except the .git directory so the publish
// is an exact replacement, never a merge.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyTree copies src's contents into dst preserving structure.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
