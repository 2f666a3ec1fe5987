// Package vcs snapshots run directories into a local git history. Every git
// invocation pins --git-dir and --work-tree to the run so a stray GIT_DIR or
// an enclosing repository can never receive a run's commits.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sink records a snapshot of a run directory after a stage completes.
type Sink interface {
	// Snapshot commits the current run contents with the given message.
	// It returns the commit identifier, or "" when nothing changed.
	Snapshot(ctx context.Context, message string) (string, error)
}

// NoopSink satisfies Sink without touching git. Used when git is disabled in
// the run config or the binary is unavailable.
type NoopSink struct{}

// Snapshot does nothing.
func (NoopSink) Snapshot(context.Context, string) (string, error) {
	return "", nil
}

// SafetyError reports a repository whose remotes match a forbidden pattern.
// Committing run output into such a repository risks pushing generated
// content to a shared remote, so the sink refuses outright.
type SafetyError struct {
	Remote  string
	Pattern string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("vcs: remote %q matches forbidden pattern %q; "+
		"runs must use their own local repository", e.Remote, e.Pattern)
}

// GitSink commits run snapshots into a repository rooted at the run directory.
type GitSink struct {
	workTree  string
	gitDir    string
	forbidden []string
}

// NewGitSink prepares a sink for the run directory. The repository lives at
// <runDir>/.git; forbidden lists remote substrings that abort all operations.
func NewGitSink(runDir string, forbidden []string) *GitSink {
	return &GitSink{
		workTree:  runDir,
		gitDir:    filepath.Join(runDir, ".git"),
		forbidden: forbidden,
	}
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Init creates the run repository if it does not exist yet.
func (s *GitSink) Init(ctx context.Context) error {
	if _, err := s.git(ctx, "rev-parse", "--git-dir"); err == nil {
		return s.checkRemotes(ctx)
	}
	if _, err := s.git(ctx, "init"); err != nil {
		return fmt.Errorf("vcs: init repository: %w", err)
	}
	// Commits need an identity even on machines with no global git config;
	// the repository is tool-owned, so a fixed local one is fine.
	if _, err := s.git(ctx, "config", "user.email", "scrivener@localhost"); err != nil {
		return fmt.Errorf("vcs: set identity: %w", err)
	}
	if _, err := s.git(ctx, "config", "user.name", "scrivener"); err != nil {
		return fmt.Errorf("vcs: set identity: %w", err)
	}
	return nil
}

// Snapshot stages everything in the run and commits it, initializing the
// repository on first use. A clean tree yields an empty commit id and no
// error.
func (s *GitSink) Snapshot(ctx context.Context, message string) (string, error) {
	if err := s.Init(ctx); err != nil {
		return "", err
	}
	if _, err := s.git(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("vcs: stage changes: %w", err)
	}
	status, err := s.git(ctx, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("vcs: status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		return "", nil
	}
	if _, err := s.git(ctx, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("vcs: commit: %w", err)
	}
	id, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("vcs: resolve HEAD: %w", err)
	}
	return strings.TrimSpace(id), nil
}

// Log returns the recent snapshot history, newest first.
func (s *GitSink) Log(ctx context.Context, limit int) ([]string, error) {
	out, err := s.git(ctx, "log", fmt.Sprintf("-%d", limit), "--pretty=format:%h %s")
	if err != nil {
		return nil, fmt.Errorf("vcs: log: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// checkRemotes refuses to operate on a repository with a forbidden remote.
func (s *GitSink) checkRemotes(ctx context.Context) error {
	out, err := s.git(ctx, "remote", "-v")
	if err != nil {
		// No repository yet means no remotes to worry about.
		return nil
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, pattern := range s.forbidden {
			if pattern != "" && strings.Contains(line, pattern) {
				return &SafetyError{Remote: line, Pattern: pattern}
			}
		}
	}
	return nil
}

// git runs one git command pinned to the run repository. Environment git
// discovery is bypassed entirely.
func (s *GitSink) git(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--git-dir", s.gitDir, "--work-tree", s.workTree}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = s.workTree
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
