// Package run manages versioned, isolated run directories. Each run owns its
// own state store, audit log, and (optionally) version-control history; the
// guard makes sure nothing written for a run can land outside its boundary.
package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsolationError is raised when a write would escape a run's directory
// boundary. It is fatal by design: silent cross-contamination is
// unrecoverable without manual repository surgery.
type IsolationError struct {
	Path   string
	Bound  string
	Reason string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("isolation violation: %s resolves outside run boundary %s (%s)",
		e.Path, e.Bound, e.Reason)
}

// Guard enforces the directory boundary for one run.
type Guard struct {
	bound string
}

// NewGuard creates a guard for the run directory. The directory is resolved
// to an absolute path once so later checks cannot be confused by cwd changes.
func NewGuard(runDir string) (*Guard, error) {
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return nil, fmt.Errorf("run: resolve %s: %w", runDir, err)
	}
	return &Guard{bound: filepath.Clean(abs)}, nil
}

// Bound returns the guarded directory.
func (g *Guard) Bound() string {
	return g.bound
}

// Check verifies that path resolves inside the run boundary. Symlinks in
// already-existing parents are resolved so a link pointing out of the run
// cannot smuggle writes past the textual check.
func (g *Guard) Check(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &IsolationError{Path: path, Bound: g.bound, Reason: err.Error()}
	}
	abs = filepath.Clean(abs)
	if resolved, err := resolveExisting(abs); err == nil {
		abs = resolved
	}
	bound := g.bound
	if resolved, err := filepath.EvalSymlinks(bound); err == nil {
		bound = resolved
	}
	rel, err := filepath.Rel(bound, abs)
	if err != nil {
		return &IsolationError{Path: path, Bound: g.bound, Reason: err.Error()}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &IsolationError{Path: path, Bound: g.bound, Reason: "path escapes run directory"}
	}
	return nil
}

// WriteFile writes data to path after the boundary check passes.
func (g *Guard) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := g.Check(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("run: ensure dir for %s: %w", path, err)
	}
	return os.WriteFile(path, data, perm)
}

// resolveExisting resolves symlinks over the longest existing prefix of path
// and reattaches the non-existent suffix.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
