package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigParses(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Manuscript.TargetJournal != "bioinformatics" {
		t.Fatalf("unexpected journal %q", cfg.Manuscript.TargetJournal)
	}
	if cfg.PolicyStrict() {
		t.Fatal("default policy severity should be warn")
	}
	limits, ok := cfg.SectionLimitsFor("abstract")
	if !ok || limits.MaxWords != 250 {
		t.Fatalf("abstract limits = %+v ok=%v", limits, ok)
	}
	policy, ok := cfg.Citations.Policies["methods"]
	if !ok {
		t.Fatal("missing methods policy")
	}
	if len(policy.Forbidden) != 1 || policy.Forbidden[0] != "review" {
		t.Fatalf("methods forbidden = %v", policy.Forbidden)
	}
}

func TestEnsureThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".scrivener", "config.yaml")
	if err := Ensure(path); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Second ensure must not clobber an existing file.
	if err := os.WriteFile(path, []byte("version: 1\ncitations:\n  policy_severity: error\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Ensure(path); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.PolicyStrict() {
		t.Fatal("policy_severity override lost")
	}
	// Unset fields fall back to defaults.
	if _, ok := cfg.SectionLimitsFor("methods"); !ok {
		t.Fatal("defaults not merged under override")
	}
}

func TestLoadRejectsBadSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("citations:\n  policy_severity: fatal\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestVerificationCommandLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "verification:\n  commands:\n    drafting: \"wc -w sections/abstract.md\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cmd, ok := cfg.VerificationCommand("drafting")
	if !ok || cmd == "" {
		t.Fatalf("command lookup failed: %q ok=%v", cmd, ok)
	}
	if _, ok := cfg.VerificationCommand("assembly"); ok {
		t.Fatal("unexpected command for assembly")
	}
}
