package citation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kmreade/scrivener/internal/audit"
	"github.com/kmreade/scrivener/internal/config"
)

func writeEvidence(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, "literature_evidence.csv")
	content := "citation_key,title,doi,year,category,source_id,quote\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write evidence: %v", err)
	}
	return path
}

func newValidator(t *testing.T, store *Store) *Validator {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	v := NewValidator(store, PoliciesFromConfig(cfg), logger)
	v.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return v
}

func TestLoadStoreAndCategoryInference(t *testing.T) {
	dir := t.TempDir()
	path := writeEvidence(t, dir,
		`smith2024,"FastAlign: a tool for alignment",10.1/x,2024,,s2,"aligns fast"`,
		`jones2015,"A survey of methods",10.1/y,2015,review,s2,"surveys"`,
		`old1999,"Foundations of inference",10.1/z,1999,,pubmed,"foundational"`,
	)
	store, err := LoadStore(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", store.Len())
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := store.CategoryOf("smith2024", now); got != CategoryTool {
		t.Fatalf("smith2024 category = %s, want tool", got)
	}
	if got := store.CategoryOf("jones2015", now); got != CategoryReview {
		t.Fatalf("jones2015 category = %s, want review", got)
	}
	if got := store.CategoryOf("old1999", now); got != CategorySeminal {
		t.Fatalf("old1999 category = %s, want seminal", got)
	}
}

func TestLoadStoreMissingFileIsEmpty(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", store.Len())
	}
}

func TestValidateEntryRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeEvidence(t, dir, `smith2024,"Title",10.1/x,2024,tool,s2,"q"`)
	store, err := LoadStore(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v := newValidator(t, store)

	if err := v.ValidateEntry("drafting", "methods", "smith2024", "uses [smith2024]"); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	err = v.ValidateEntry("drafting", "methods", "ghost2020", "per [ghost2020]")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Key != "ghost2020" {
		t.Fatalf("error key = %s", notFound.Key)
	}

	history, err := v.Audit.History("ghost2020")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != audit.ResolutionRejected {
		t.Fatalf("rejection not audited: %+v", history)
	}
}

func TestValidateSectionPolicyViolations(t *testing.T) {
	dir := t.TempDir()
	path := writeEvidence(t, dir,
		`rev2018,"A survey of the field",10.1/a,2018,review,s2,"q"`,
		`tool2023,"PipeTool software",10.1/b,2023,tool,s2,"q"`,
	)
	store, err := LoadStore(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v := newValidator(t, store)

	violations, err := v.ValidateSection("drafting", "methods", "We used [tool2023] as described in [rev2018].")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
	if violations[0].Key != "rev2018" || violations[0].Category != CategoryReview {
		t.Fatalf("unexpected violation: %+v", violations[0])
	}
}

func TestValidateSectionLayer1Failure(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v := newValidator(t, store)
	if _, err := v.ValidateSection("drafting", "results", "See [phantom2021]."); err == nil {
		t.Fatal("expected layer 1 failure")
	}
}

func TestValidateCompletenessReportsBothOrphans(t *testing.T) {
	dir := t.TempDir()
	manuscript := filepath.Join(dir, "manuscript.md")
	bib := filepath.Join(dir, "citations.bib")
	if err := os.WriteFile(manuscript, []byte("Cites [x2024] and [z2022]."), 0o644); err != nil {
		t.Fatalf("write manuscript: %v", err)
	}
	bibBody := "@article{x2024,\n  title={X}\n}\n@article{y2023,\n  title={Y}\n}\n"
	if err := os.WriteFile(bib, []byte(bibBody), 0o644); err != nil {
		t.Fatalf("write bib: %v", err)
	}
	store, err := LoadStore(filepath.Join(dir, "absent.csv"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v := newValidator(t, store)

	err = v.ValidateCompleteness(manuscript, bib)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if len(mismatch.OrphanedText) != 1 || mismatch.OrphanedText[0] != "z2022" {
		t.Fatalf("orphaned text = %v", mismatch.OrphanedText)
	}
	if len(mismatch.OrphanedBib) != 1 || mismatch.OrphanedBib[0] != "y2023" {
		t.Fatalf("orphaned bib = %v", mismatch.OrphanedBib)
	}
	if !strings.Contains(mismatch.Error(), "z2022") || !strings.Contains(mismatch.Error(), "y2023") {
		t.Fatalf("error does not enumerate orphans: %s", mismatch.Error())
	}
}

func TestValidateCompletenessPasses(t *testing.T) {
	dir := t.TempDir()
	manuscript := filepath.Join(dir, "manuscript.md")
	bib := filepath.Join(dir, "citations.bib")
	if err := os.WriteFile(manuscript, []byte("Cites [x2024]."), 0o644); err != nil {
		t.Fatalf("write manuscript: %v", err)
	}
	if err := os.WriteFile(bib, []byte("@article{x2024,\n title={X}\n}\n"), 0o644); err != nil {
		t.Fatalf("write bib: %v", err)
	}
	store, _ := LoadStore(filepath.Join(dir, "absent.csv"))
	v := newValidator(t, store)
	if err := v.ValidateCompleteness(manuscript, bib); err != nil {
		t.Fatalf("completeness: %v", err)
	}
}

func TestStatusMachine(t *testing.T) {
	status := StatusUnchecked
	var err error
	for _, next := range []Status{StatusLayer1Passed, StatusLayer2Reviewed, StatusLayer3Failed} {
		status, err = Advance(status, next)
		if err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	// No path from layer3_failed straight to passed.
	if _, err := Advance(status, StatusLayer3Passed); err == nil {
		t.Fatal("expected rejection of layer3_failed -> layer3_passed")
	}
	// Recovery requires going back through unchecked.
	status, err = Advance(status, StatusUnchecked)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if status != StatusUnchecked {
		t.Fatalf("status = %s", status)
	}
}

func TestKeysInTextOrderAndDedup(t *testing.T) {
	keys := KeysInText("See [a2024], then [b2023], then [a2024] again.")
	if len(keys) != 2 || keys[0] != "a2024" || keys[1] != "b2023" {
		t.Fatalf("keys = %v", keys)
	}
}
