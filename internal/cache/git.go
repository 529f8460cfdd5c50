package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// GitStore is a FileStore whose file lives in a git checkout. Load pulls
// first; Save commits and pushes. A rejected push is reported as ErrConflict
// after the local commit is undone, so the caller can reload and retry.
type GitStore struct {
	file   *FileStore
	repo   string
	remote string
	branch string

	run func(ctx context.Context, dir string, args ...string) (string, error)
	now func() time.Time
}

func NewGitStore(path, remote, branch string) *GitStore {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	return &GitStore{
		file:   NewFileStore(path),
		repo:   filepath.Dir(path),
		remote: remote,
		branch: branch,
		run:    runGit,
		now:    time.Now,
	}
}

func (s *GitStore) Load(ctx context.Context) (Snapshot, error) {
	if _, err := s.run(ctx, s.repo, "pull", "--rebase", s.remote, s.branch); err != nil {
		// Offline or no upstream yet: the local checkout is still usable.
		logger.Warnf("git pull failed, using local copy: %v", err)
	}
	return s.file.Load(ctx)
}

func (s *GitStore) Save(ctx context.Context, c weather.Cache, expectedVersion string) (string, error) {
	prior, current, err := s.file.read()
	if err != nil {
		return "", err
	}
	if current != expectedVersion {
		return "", fmt.Errorf("%w: have %q, expected %q", ErrConflict, current, expectedVersion)
	}

	version, err := s.file.Save(ctx, c, expectedVersion)
	if err != nil {
		return "", err
	}

	name := filepath.Base(s.file.Path())
	if _, err := s.run(ctx, s.repo, "add", name); err != nil {
		return "", s.rollback(ctx, name, prior, fmt.Errorf("git add: %w", err))
	}
	if _, err := s.run(ctx, s.repo, "diff", "--staged", "--quiet"); err == nil {
		logger.Infof("git: no changes to commit")
		return version, nil
	}

	msg := fmt.Sprintf("Update beach weather cache %s", s.now().UTC().Format("2006-01-02 15:04 MST"))
	if _, err := s.run(ctx, s.repo, "commit", "-m", msg); err != nil {
		return "", s.rollback(ctx, name, prior, fmt.Errorf("git commit: %w", err))
	}
	if _, err := s.run(ctx, s.repo, "push", s.remote, "HEAD:"+s.branch); err != nil {
		if _, resetErr := s.run(ctx, s.repo, "reset", "--hard", "HEAD~1"); resetErr != nil {
			return "", fmt.Errorf("git push: %v; reset: %w", err, resetErr)
		}
		return "", fmt.Errorf("%w: git push rejected: %v", ErrConflict, err)
	}
	return version, nil
}

// rollback unstages name and puts prior back in the working tree, so an
// uncommitted write never becomes the base of the next load.
func (s *GitStore) rollback(ctx context.Context, name string, prior []byte, cause error) error {
	if _, err := s.run(context.WithoutCancel(ctx), s.repo, "reset", "--quiet", "HEAD", "--", name); err != nil {
		logger.Debugf("git: unstage %s: %v", name, err)
	}
	if err := s.file.restore(prior); err != nil {
		return fmt.Errorf("%w; restore %s: %v", cause, name, err)
	}
	return cause
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.String(), fmt.Errorf("git %s: exit %d: %s", args[0], exitErr.ExitCode(), strings.TrimSpace(out.String()))
		}
		return out.String(), fmt.Errorf("git %s: %w", args[0], err)
	}
	return out.String(), nil
}
