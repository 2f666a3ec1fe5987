package citation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kmreade/scrivener/internal/audit"
)

// NotFoundError reports a citation key absent from the evidence set.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("citation [%s] not found in the evidence store; "+
		"add the source with its supporting quote before citing it", e.Key)
}

// MismatchError enumerates every orphaned key found at assembly time so the
// operator can fix all of them in one pass.
type MismatchError struct {
	OrphanedText []string
	OrphanedBib  []string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	b.WriteString("citation mismatch:")
	if len(e.OrphanedText) > 0 {
		fmt.Fprintf(&b, " %d text citation(s) with no bibliography entry: {%s}",
			len(e.OrphanedText), strings.Join(e.OrphanedText, ", "))
	}
	if len(e.OrphanedBib) > 0 {
		fmt.Fprintf(&b, " %d bibliography entr(ies) never cited: {%s}",
			len(e.OrphanedBib), strings.Join(e.OrphanedBib, ", "))
	}
	b.WriteString("; add missing bibliography entries or remove unused ones")
	return b.String()
}

// Status tracks a run's citation validation progress.
type Status string

const (
	StatusUnchecked      Status = "unchecked"
	StatusLayer1Passed   Status = "layer1_passed"
	StatusLayer2Reviewed Status = "layer2_reviewed"
	StatusLayer3Passed   Status = "layer3_passed"
	StatusLayer3Failed   Status = "layer3_failed"
)

// Advance validates a status transition. The only way out of layer3_failed
// is back to unchecked, which requires re-running content generation.
func Advance(from, to Status) (Status, error) {
	allowed := map[Status][]Status{
		StatusUnchecked:      {StatusLayer1Passed},
		StatusLayer1Passed:   {StatusLayer1Passed, StatusLayer2Reviewed},
		StatusLayer2Reviewed: {StatusLayer1Passed, StatusLayer2Reviewed, StatusLayer3Passed, StatusLayer3Failed},
		StatusLayer3Passed:   {StatusLayer3Passed},
		StatusLayer3Failed:   {StatusUnchecked},
	}
	for _, candidate := range allowed[from] {
		if candidate == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("citation: invalid status transition %s -> %s", from, to)
}

// Validator binds the evidence snapshot, policy table, and audit sink for
// one validation pass.
type Validator struct {
	Store    *Store
	Policies PolicyTable
	Audit    *audit.Logger
	Now      func() time.Time
}

// NewValidator wires a validator. The audit logger may be nil in read-only
// query paths; every gate path passes one.
func NewValidator(store *Store, policies PolicyTable, auditLog *audit.Logger) *Validator {
	return &Validator{Store: store, Policies: policies, Audit: auditLog, Now: time.Now}
}

// ValidateEntry is Layer 1: reject a key the evidence set does not contain.
// Every resolution attempt is recorded regardless of outcome.
func (v *Validator) ValidateEntry(stage, section, key, context string) error {
	if v.Store.Has(key) {
		v.record(stage, section, key, context, audit.ResolutionAccepted, "")
		return nil
	}
	err := &NotFoundError{Key: key}
	v.record(stage, section, key, context, audit.ResolutionRejected, err.Error())
	return err
}

// ValidateSection runs Layers 1 and 2 over a section body. Layer 1 failures
// are returned as errors; Layer 2 findings come back as violations for the
// caller to surface or escalate.
func (v *Validator) ValidateSection(stage, section, body string) ([]Violation, error) {
	keys := KeysInText(body)
	var missing []string
	for _, key := range keys {
		if err := v.ValidateEntry(stage, section, key, ContextFor(body, key)); err != nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("citation: section %s cites keys with no evidence: {%s}",
			section, strings.Join(missing, ", "))
	}
	violations := v.Policies.Review(section, keys, v.Store, v.Now())
	for _, violation := range violations {
		v.record(stage, section, violation.Key, "", audit.ResolutionWarned, violation.Message)
	}
	return violations, nil
}

// ValidateCompleteness is Layer 3: set equality between in-text keys and
// bibliography keys over the assembled artifact. Any orphan on either side
// blocks assembly.
func (v *Validator) ValidateCompleteness(manuscriptPath, bibPath string) error {
	textKeys, err := TextKeys(manuscriptPath)
	if err != nil {
		return err
	}
	bibKeys, err := BibKeys(bibPath)
	if err != nil {
		return err
	}
	var orphanedText, orphanedBib []string
	for key := range textKeys {
		if _, ok := bibKeys[key]; !ok {
			orphanedText = append(orphanedText, key)
		}
	}
	for key := range bibKeys {
		if _, ok := textKeys[key]; !ok {
			orphanedBib = append(orphanedBib, key)
		}
	}
	sort.Strings(orphanedText)
	sort.Strings(orphanedBib)
	for _, key := range orphanedText {
		v.record("assembly", "", key, "", audit.ResolutionRejected, "text citation with no bibliography entry")
	}
	for _, key := range orphanedBib {
		v.record("assembly", "", key, "", audit.ResolutionRejected, "bibliography entry never cited")
	}
	if len(orphanedText) > 0 || len(orphanedBib) > 0 {
		return &MismatchError{OrphanedText: orphanedText, OrphanedBib: orphanedBib}
	}
	for key := range textKeys {
		v.record("assembly", "", key, "", audit.ResolutionAccepted, "")
	}
	return nil
}

func (v *Validator) record(stage, section, key, context, status, detail string) {
	if v.Audit == nil {
		return
	}
	// Audit writes are best-effort: a full disk must not turn a validation
	// verdict into a different verdict.
	_ = v.Audit.CitationResolution(stage, section, key, context, status, detail)
}
