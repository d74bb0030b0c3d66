// Package git wraps the git command line for the repository facts the
// monitor needs: the worktree root, the metadata directory, and the
// tracked-file list.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/repowatchapp/repowatch-server/internal/errors"
)

// Repo describes an opened git working tree.
type Repo struct {
	worktree string // absolute worktree root
	gitDir   string // absolute metadata directory (.git dir or gitfile target)
}

// Open resolves the working tree containing dir. Returns errors.ErrNotRepo
// when dir is not inside a git working tree.
func Open(ctx context.Context, dir string) (*Repo, error) {
	worktree, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, classifyGitError(err)
	}

	gitDir, err := runGit(ctx, dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, classifyGitError(err)
	}

	return &Repo{
		worktree: filepath.Clean(strings.TrimSpace(worktree)),
		gitDir:   filepath.Clean(strings.TrimSpace(gitDir)),
	}, nil
}

// Worktree returns the absolute path of the working tree root.
func (r *Repo) Worktree() string { return r.worktree }

// GitDir returns the absolute path of the git metadata directory.
func (r *Repo) GitDir() string { return r.gitDir }

// LsFiles returns the worktree-relative paths of all tracked files.
func (r *Repo) LsFiles(ctx context.Context) ([]string, error) {
	output, err := runGit(ctx, r.worktree, "ls-files", "-z")
	if err != nil {
		return nil, classifyGitError(err)
	}
	return splitNullTerminated(output), nil
}

// WatchDirs derives the set of absolute parent directories of every tracked
// file, the reconciler's desired watch set. The worktree root itself is
// always included.
func (r *Repo) WatchDirs(ctx context.Context) (map[string]struct{}, error) {
	files, err := r.LsFiles(ctx)
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]struct{}, len(files)/4+1)
	dirs[r.worktree] = struct{}{}
	for _, file := range files {
		dir := filepath.Dir(filepath.Join(r.worktree, file))
		dirs[filepath.Clean(dir)] = struct{}{}
	}
	return dirs, nil
}

func splitNullTerminated(output string) []string {
	parts := strings.Split(output, "\x00")
	files := parts[:0]
	for _, part := range parts {
		if part != "" {
			files = append(files, part)
		}
	}
	return files
}

func runGit(ctx context.Context, workDir string, args ...string) (string, error) {
	command := exec.CommandContext(ctx, "git", append([]string{"-C", workDir}, args...)...)
	output, err := command.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

func classifyGitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "not a git repository") {
		return errors.ErrNotRepo.WithCause(err)
	}
	var notFoundErr *exec.Error
	if errors.As(err, &notFoundErr) && errors.Is(notFoundErr, exec.ErrNotFound) {
		return errors.Unavailable("git executable not found").WithCause(err)
	}
	return err
}
