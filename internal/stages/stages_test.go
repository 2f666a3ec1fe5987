package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kmreade/scrivener/internal/audit"
	"github.com/kmreade/scrivener/internal/citation"
	"github.com/kmreade/scrivener/internal/config"
	"github.com/kmreade/scrivener/internal/manuscript"
	"github.com/kmreade/scrivener/internal/stage"
)

func newEnv(t *testing.T) *stage.Env {
	t.Helper()
	layout := manuscript.NewLayout(t.TempDir())
	if err := layout.Init(); err != nil {
		t.Fatalf("layout: %v", err)
	}
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger, err := audit.New(layout.AuditPath())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	return &stage.Env{Layout: layout, Config: cfg, Audit: logger}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func writeEvidence(t *testing.T, env *stage.Env, rows ...string) {
	t.Helper()
	content := "citation_key,title,doi,year,category,source_id,quote\n" + strings.Join(rows, "\n") + "\n"
	write(t, env.Layout.EvidencePath(), content)
}

func TestDefaultRegistryCoversPipeline(t *testing.T) {
	registry := DefaultRegistry()
	names := registry.Names()
	if len(names) != 7 {
		t.Fatalf("names = %v", names)
	}
	for _, name := range []string{"analysis", "planning", "assessment", "research", "drafting", "assembly", "review"} {
		if _, err := registry.Get(name); err != nil {
			t.Fatalf("missing stage %s: %v", name, err)
		}
	}
}

func TestAnalysisVerifyRequiresOutput(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	var verr *stage.VerificationError
	if err := (Analysis{}).Verify(ctx, env); !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	write(t, env.Layout.AnalysisPath(), "")
	if err := (Analysis{}).Verify(ctx, env); !errors.As(err, &verr) {
		t.Fatalf("empty output accepted: %v", err)
	}
	write(t, env.Layout.AnalysisPath(), "# Analysis\n")
	if err := (Analysis{}).Verify(ctx, env); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestResearchVerifyRejectsUnbackedBibEntries(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	write(t, env.Layout.LiteraturePath(), "# Literature\n")
	writeEvidence(t, env, `smith2024,"Tool paper",10.1/x,2024,tool,s2,"q"`)
	write(t, env.Layout.BibPath(), "@article{smith2024,\n title={X}\n}\n@article{ghost2020,\n title={G}\n}\n")

	err := (Research{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "bibliography" {
		t.Fatalf("expected bibliography failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost2020") {
		t.Fatalf("error does not name the orphan: %v", err)
	}

	write(t, env.Layout.BibPath(), "@article{smith2024,\n title={X}\n}\n")
	if err := (Research{}).Verify(ctx, env); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDraftingVerifyEnforcesWordLimits(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	writeEvidence(t, env, `smith2024,"Tool paper",10.1/x,2024,tool,s2,"q"`)
	for _, section := range manuscript.DefaultSections {
		limits, _ := env.Config.SectionLimitsFor(section)
		write(t, env.Layout.SectionPath(section), words(limits.TargetWords))
	}
	if err := (Drafting{}).Verify(ctx, env); err != nil {
		t.Fatalf("verify: %v", err)
	}

	write(t, env.Layout.SectionPath("abstract"), words(10))
	err := (Drafting{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "word_limits" {
		t.Fatalf("expected word_limits failure, got %v", err)
	}
}

func TestDraftingVerifyRejectsUnknownCitations(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	writeEvidence(t, env, `smith2024,"Tool paper",10.1/x,2024,tool,s2,"q"`)
	for _, section := range manuscript.DefaultSections {
		limits, _ := env.Config.SectionLimitsFor(section)
		write(t, env.Layout.SectionPath(section), words(limits.TargetWords))
	}
	limits, _ := env.Config.SectionLimitsFor("methods")
	write(t, env.Layout.SectionPath("methods"), words(limits.TargetWords)+" as in [phantom2021]")

	err := (Drafting{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "citations" {
		t.Fatalf("expected citations failure, got %v", err)
	}
}

func TestDraftingPolicySeverityEscalation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	// A review-category source cited in methods violates the section policy.
	writeEvidence(t, env, `rev2018,"A survey of the field",10.1/a,2018,review,s2,"q"`)
	for _, section := range manuscript.DefaultSections {
		limits, _ := env.Config.SectionLimitsFor(section)
		write(t, env.Layout.SectionPath(section), words(limits.TargetWords))
	}
	limits, _ := env.Config.SectionLimitsFor("methods")
	write(t, env.Layout.SectionPath("methods"), words(limits.TargetWords)+" per [rev2018]")

	// Default severity is warn: the draft passes with an audit trail.
	if err := (Drafting{}).Verify(ctx, env); err != nil {
		t.Fatalf("warn severity should pass: %v", err)
	}

	env.Config.Citations.PolicySeverity = "error"
	err := (Drafting{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "citation_policy" {
		t.Fatalf("expected citation_policy failure, got %v", err)
	}
}

func TestAssemblyVerifyCompleteness(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	writeEvidence(t, env, `x2024,"Paper",10.1/x,2024,tool,s2,"q"`)
	write(t, env.Layout.ManuscriptPath(), "Cites [x2024] and [z2022].")
	write(t, env.Layout.ManifestPath(), `{"sections": []}`)
	write(t, env.Layout.BibPath(), "@article{x2024,\n title={X}\n}\n")

	err := (Assembly{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "citation_completeness" {
		t.Fatalf("expected completeness failure, got %v", err)
	}
	var mismatch *citation.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected wrapped MismatchError, got %v", err)
	}

	write(t, env.Layout.ManuscriptPath(), "Cites [x2024].")
	if err := (Assembly{}).Verify(ctx, env); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAssemblyVerifyTotalWordLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.Config.Manuscript.TotalWordLimit = 50
	writeEvidence(t, env, `x2024,"Paper",10.1/x,2024,tool,s2,"q"`)
	write(t, env.Layout.ManifestPath(), `{"sections": []}`)
	write(t, env.Layout.BibPath(), "")
	write(t, env.Layout.ManuscriptPath(), words(80))

	err := (Assembly{}).Verify(ctx, env)
	var verr *stage.VerificationError
	if !errors.As(err, &verr) || verr.Check != "word_limits" {
		t.Fatalf("expected word_limits failure, got %v", err)
	}
}
