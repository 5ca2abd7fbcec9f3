// Package gitsync mirrors the data directory into a git repository so the
// persisted quota and cache documents survive host loss. It is optional and
// best-effort: a failed sync is logged by the caller, never fatal.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v6"
	gitconfig "github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing/object"
	githttp "github.com/go-git/go-git/v6/plumbing/transport/http"
	log "github.com/sirupsen/logrus"
)

const (
	remoteName      = "origin"
	commitName      = "tripkeeper"
	commitEmail     = "tripkeeper@localhost"
	defaultUsername = "tripkeeper"
)

// Syncer commits and pushes the data directory after mutating runs.
type Syncer struct {
	repo  *git.Repository
	token string
	nowFn func() time.Time
}

// NewSyncer opens the repository at dir, initializing one if needed, and
// makes sure the remote points at remoteURL. An empty remoteURL keeps the
// repository local-only (commits without pushes).
func NewSyncer(dir, remoteURL, token string) (*Syncer, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("gitsync: open repository at %s failed: %w", dir, err)
	}

	if remoteURL != "" {
		if _, remoteErr := repo.Remote(remoteName); errors.Is(remoteErr, git.ErrRemoteNotFound) {
			_, remoteErr = repo.CreateRemote(&gitconfig.RemoteConfig{
				Name: remoteName,
				URLs: []string{remoteURL},
			})
			if remoteErr != nil {
				return nil, fmt.Errorf("gitsync: create remote failed: %w", remoteErr)
			}
		}
	}

	return &Syncer{repo: repo, token: token, nowFn: time.Now}, nil
}

// Sync stages everything, commits when the worktree is dirty, and pushes if
// a remote is configured. A clean worktree is a no-op.
func (s *Syncer) Sync(ctx context.Context, message string) error {
	if s == nil || s.repo == nil {
		return nil
	}
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("gitsync: worktree failed: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("gitsync: staging failed: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("gitsync: status failed: %w", err)
	}
	if status.IsClean() {
		log.Debug("gitsync: worktree clean, nothing to commit")
		return nil
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitName,
			Email: commitEmail,
			When:  s.nowFn(),
		},
	})
	if err != nil {
		return fmt.Errorf("gitsync: commit failed: %w", err)
	}

	if _, remoteErr := s.repo.Remote(remoteName); remoteErr != nil {
		// Local-only repository: commit is enough.
		return nil
	}

	pushOpts := &git.PushOptions{RemoteName: remoteName}
	if s.token != "" {
		pushOpts.Auth = &githttp.BasicAuth{Username: defaultUsername, Password: s.token}
	}
	if err := s.repo.PushContext(ctx, pushOpts); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("gitsync: push failed: %w", err)
	}
	return nil
}
