package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/zer0complexity/killicker/pkg/config"
)

// Gitter commits exported data files into the repository holding the data
// directory and pushes them to the configured remote, so the map frontend
// picks up new tracks from the published branch.
type Gitter struct {
	repo   *git.Repository
	remote string
	author object.Signature
}

// Open opens the repository at cfg.RepoPath.
func Open(cfg *config.GitConfig) (*Gitter, error) {
	repo, err := git.PlainOpen(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", cfg.RepoPath, err)
	}
	return &Gitter{
		repo:   repo,
		remote: cfg.Remote,
		author: object.Signature{Name: cfg.AuthorName, Email: cfg.AuthorEmail},
	}, nil
}

// AddFiles stages the given paths, relative to the repository root.
func (g *Gitter) AddFiles(paths ...string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
	}
	return nil
}

// CommitAndPush commits staged changes and pushes to the remote. An empty
// message gets the default data-update message. A clean worktree or an
// up-to-date remote is not an error.
func (g *Gitter) CommitAndPush(ctx context.Context, message string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if status.IsClean() {
		slog.Info("Nothing to commit, worktree clean")
		return nil
	}

	if message == "" {
		message = "Update data - " + time.Now().UTC().Format(time.RFC3339)
	}

	author := g.author
	author.When = time.Now()
	hash, err := wt.Commit(message, &git.CommitOptions{Author: &author})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	slog.Info("Committed data update", "hash", hash.String()[:8], "message", message)

	err = g.repo.PushContext(ctx, &git.PushOptions{RemoteName: g.remote})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Info("Remote already up to date", "remote", g.remote)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", g.remote, err)
	}
	slog.Info("Pushed data update", "remote", g.remote)
	return nil
}
