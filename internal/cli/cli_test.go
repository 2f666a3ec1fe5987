package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := execute(t, root, args...)
	if err != nil {
		t.Fatalf("scrivener %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestNewAndRuns(t *testing.T) {
	root := t.TempDir()
	out := mustExecute(t, root, "new", "paper", "--journal", "plos")
	if !strings.Contains(out, "created paper_v1") {
		t.Fatalf("out = %q", out)
	}
	mustExecute(t, root, "new", "paper")

	out = mustExecute(t, root, "runs", "paper")
	if !strings.Contains(out, "paper_v1") || !strings.Contains(out, "paper_v2") {
		t.Fatalf("out = %q", out)
	}
	if !strings.Contains(out, "plos") {
		t.Fatalf("journal missing: %q", out)
	}
}

func TestStatusAndRerunSetOnFreshRun(t *testing.T) {
	root := t.TempDir()
	mustExecute(t, root, "new", "paper")

	out := mustExecute(t, root, "status", "paper")
	if !strings.Contains(out, "analysis") || !strings.Contains(out, "not_started") {
		t.Fatalf("out = %q", out)
	}

	out = mustExecute(t, root, "rerun-set", "paper_v1")
	if !strings.Contains(out, "analysis\tnot_completed") {
		t.Fatalf("out = %q", out)
	}
}

func TestBeginCompleteRoundTrip(t *testing.T) {
	root := t.TempDir()
	mustExecute(t, root, "new", "paper")

	// Disable auto-commit so the test does not depend on a git binary.
	configPath := filepath.Join(root, "paper_v1", ".scrivener", "config.yaml")
	disableGit(t, configPath)

	mustExecute(t, root, "begin", "paper_v1", "analysis")
	if _, err := execute(t, root, "complete", "paper_v1", "analysis"); err == nil {
		t.Fatal("complete must fail before the output exists")
	}

	if err := os.WriteFile(filepath.Join(root, "paper_v1", "analysis.md"), []byte("# Analysis\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mustExecute(t, root, "begin", "paper_v1", "analysis")
	out := mustExecute(t, root, "complete", "paper_v1", "analysis")
	if !strings.Contains(out, "analysis completed") {
		t.Fatalf("out = %q", out)
	}

	out = mustExecute(t, root, "status", "paper")
	if !strings.Contains(out, "completed") {
		t.Fatalf("out = %q", out)
	}
	out = mustExecute(t, root, "audit", "paper_v1")
	if !strings.Contains(out, "stage") || !strings.Contains(out, "analysis") {
		t.Fatalf("out = %q", out)
	}
}

func TestMilestoneAndArchive(t *testing.T) {
	root := t.TempDir()
	mustExecute(t, root, "new", "paper")
	mustExecute(t, root, "new", "paper")
	mustExecute(t, root, "new", "paper")

	mustExecute(t, root, "milestone", "paper_v1")
	out := mustExecute(t, root, "archive", "paper", "--keep-last", "1")
	if !strings.Contains(out, "archived paper_v2") {
		t.Fatalf("out = %q", out)
	}
	if strings.Contains(out, "paper_v1") || strings.Contains(out, "paper_v3") {
		t.Fatalf("protected run archived: %q", out)
	}
	if _, err := os.Stat(filepath.Join(root, "archive", "paper_v2.tar.gz")); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "paper_v1")); err != nil {
		t.Fatalf("milestone removed: %v", err)
	}
}

func TestValidateSingleKey(t *testing.T) {
	root := t.TempDir()
	mustExecute(t, root, "new", "paper")
	evidence := filepath.Join(root, "paper_v1", "literature_evidence.csv")
	content := "citation_key,title,doi,year,category,source_id,quote\n" +
		`x2024,"Paper",10.1/x,2024,tool,s2,"q"` + "\n"
	if err := os.WriteFile(evidence, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := mustExecute(t, root, "validate", "paper_v1", "--key", "x2024")
	if !strings.Contains(out, "backed by evidence") {
		t.Fatalf("out = %q", out)
	}
	if _, err := execute(t, root, "validate", "paper_v1", "--key", "ghost2020"); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func disableGit(t *testing.T, configPath string) {
	t.Helper()
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	patched := strings.Replace(string(data), "enabled: true", "enabled: false", 1)
	if err := os.WriteFile(configPath, []byte(patched), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
