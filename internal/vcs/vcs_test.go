package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skip("git binary not available")
	}
}

func TestSnapshotCommitsAndSkipsCleanTree(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	sink := NewGitSink(dir, nil)
	ctx := context.Background()
	if err := sink.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "analysis.md"), []byte("# analysis\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := sink.Snapshot(ctx, "analysis completed")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if id == "" {
		t.Fatal("expected a commit id")
	}

	again, err := sink.Snapshot(ctx, "no changes")
	if err != nil {
		t.Fatalf("clean snapshot: %v", err)
	}
	if again != "" {
		t.Fatalf("clean tree produced commit %s", again)
	}

	log, err := sink.Log(ctx, 5)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("log = %v", log)
	}
}

// Snapshot must work without an explicit Init call: the gate only holds a
// Sink and never initializes repositories itself.
func TestSnapshotInitializesRepositoryLazily(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	sink := NewGitSink(dir, nil)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "outline.md"), []byte("# outline\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err := sink.Snapshot(ctx, "planning completed")
	if err != nil {
		t.Fatalf("snapshot on fresh directory: %v", err)
	}
	if id == "" {
		t.Fatal("expected a commit id")
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Fatalf("repository not created: %v", err)
	}
}

func TestForbiddenRemoteBlocksSnapshot(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	sink := NewGitSink(dir, []string{"github.com/kmreade/scrivener"})
	ctx := context.Background()
	if err := sink.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	cmd := exec.Command("git", "--git-dir", filepath.Join(dir, ".git"),
		"remote", "add", "origin", "https://github.com/kmreade/scrivener.git")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("add remote: %v: %s", err, out)
	}

	_, err := sink.Snapshot(ctx, "should not land")
	var safety *SafetyError
	if !errors.As(err, &safety) {
		t.Fatalf("expected SafetyError, got %v", err)
	}
	if safety.Pattern != "github.com/kmreade/scrivener" {
		t.Fatalf("pattern = %s", safety.Pattern)
	}
}

func TestNoopSink(t *testing.T) {
	id, err := NoopSink{}.Snapshot(context.Background(), "ignored")
	if err != nil || id != "" {
		t.Fatalf("noop = (%s, %v)", id, err)
	}
}
