// Package stages provides the built-in manuscript pipeline stages. Each one
// declares its artifact surface and the gate check that guards completion;
// content generation happens outside the tool.
package stages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/kmreade/scrivener/internal/citation"
	"github.com/kmreade/scrivener/internal/manuscript"
	"github.com/kmreade/scrivener/internal/pipeline"
	"github.com/kmreade/scrivener/internal/stage"
)

// DefaultRegistry returns a registry with every built-in stage.
func DefaultRegistry() *stage.Registry {
	registry := stage.NewRegistry()
	all := []stage.Stage{
		Analysis{}, Planning{}, Assessment{}, Research{}, Drafting{}, Assembly{}, Review{},
	}
	for _, s := range all {
		if err := registry.Register(s); err != nil {
			panic(err)
		}
	}
	return registry
}

// InputsFor adapts the registry into the resolver's input lister. Unknown
// stages report no inputs and resolve on record state alone.
func InputsFor(registry *stage.Registry, layout *manuscript.Layout) func(string) []string {
	return func(name string) []string {
		s, err := registry.Get(name)
		if err != nil {
			return nil
		}
		return s.Inputs(layout)
	}
}

// Analysis examines the project inputs and writes analysis.md.
type Analysis struct{}

func (Analysis) Info() stage.Info {
	return stage.Info{Name: pipeline.StageAnalysis, Description: "Analyze the project inputs"}
}

func (Analysis) Inputs(*manuscript.Layout) []string { return nil }

func (Analysis) Outputs(l *manuscript.Layout) []string {
	return []string{l.AnalysisPath()}
}

func (s Analysis) Verify(_ context.Context, env *stage.Env) error {
	return requireNonEmpty(s.Info().Name, env.Layout.AnalysisPath())
}

// Planning turns the analysis into an outline.
type Planning struct{}

func (Planning) Info() stage.Info {
	return stage.Info{Name: pipeline.StagePlanning, Description: "Outline the manuscript"}
}

func (Planning) Inputs(l *manuscript.Layout) []string {
	return []string{l.AnalysisPath()}
}

func (Planning) Outputs(l *manuscript.Layout) []string {
	return []string{l.OutlinePath()}
}

func (s Planning) Verify(_ context.Context, env *stage.Env) error {
	return requireNonEmpty(s.Info().Name, env.Layout.OutlinePath())
}

// Assessment checks the outline against the target journal's guidelines.
type Assessment struct{}

func (Assessment) Info() stage.Info {
	return stage.Info{Name: pipeline.StageAssessment, Description: "Assess fit against journal guidelines"}
}

func (Assessment) Inputs(l *manuscript.Layout) []string {
	return []string{l.OutlinePath()}
}

func (Assessment) Outputs(l *manuscript.Layout) []string {
	return []string{l.AssessmentPath(), l.GuidelinesPath()}
}

func (s Assessment) Verify(_ context.Context, env *stage.Env) error {
	for _, path := range s.Outputs(env.Layout) {
		if err := requireNonEmpty(s.Info().Name, path); err != nil {
			return err
		}
	}
	return nil
}

// Research collects literature, the evidence table, and the bibliography.
type Research struct{}

func (Research) Info() stage.Info {
	return stage.Info{Name: pipeline.StageResearch, Description: "Collect literature and evidence"}
}

func (Research) Inputs(l *manuscript.Layout) []string {
	return []string{l.OutlinePath(), l.GuidelinesPath()}
}

func (Research) Outputs(l *manuscript.Layout) []string {
	return []string{l.LiteraturePath(), l.EvidencePath(), l.BibPath()}
}

// Verify requires the evidence table to parse and every bibliography entry to
// be backed by evidence. Citing a source nobody collected evidence for is the
// root failure the later layers exist to catch; it is cheapest to stop here.
func (s Research) Verify(_ context.Context, env *stage.Env) error {
	name := s.Info().Name
	if err := requireNonEmpty(name, env.Layout.LiteraturePath()); err != nil {
		return err
	}
	store, err := citation.LoadStore(env.Layout.EvidencePath())
	if err != nil {
		return &stage.VerificationError{Stage: name, Check: "evidence", Err: err}
	}
	if store.Len() == 0 {
		return &stage.VerificationError{Stage: name, Check: "evidence",
			Err: fmt.Errorf("no evidence rows in %s", env.Layout.Rel(env.Layout.EvidencePath()))}
	}
	bibKeys, err := citation.BibKeys(env.Layout.BibPath())
	if err != nil {
		return &stage.VerificationError{Stage: name, Check: "bibliography", Err: err}
	}
	var unbacked []string
	for key := range bibKeys {
		if !store.Has(key) {
			unbacked = append(unbacked, key)
		}
	}
	if len(unbacked) > 0 {
		sort.Strings(unbacked)
		return &stage.VerificationError{Stage: name, Check: "bibliography",
			Err: fmt.Errorf("bibliography entries without evidence: {%s}", strings.Join(unbacked, ", "))}
	}
	return nil
}

// Drafting produces one markdown file per manuscript section.
type Drafting struct{}

func (Drafting) Info() stage.Info {
	return stage.Info{Name: pipeline.StageDrafting, Description: "Draft the manuscript sections"}
}

func (Drafting) Inputs(l *manuscript.Layout) []string {
	return []string{l.OutlinePath(), l.EvidencePath()}
}

func (Drafting) Outputs(l *manuscript.Layout) []string {
	out := make([]string, 0, len(manuscript.DefaultSections))
	for _, section := range manuscript.DefaultSections {
		out = append(out, l.SectionPath(section))
	}
	return out
}

// Verify checks word limits and runs citation layers 1 and 2 over every
// section. Policy findings stay advisory unless the run config escalates
// them.
func (s Drafting) Verify(_ context.Context, env *stage.Env) error {
	name := s.Info().Name
	store, err := citation.LoadStore(env.Layout.EvidencePath())
	if err != nil {
		return &stage.VerificationError{Stage: name, Check: "evidence", Err: err}
	}
	validator := citation.NewValidator(store, citation.PoliciesFromConfig(env.Config), env.Audit)
	for _, section := range manuscript.DefaultSections {
		path := env.Layout.SectionPath(section)
		body, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return &stage.VerificationError{Stage: name, Check: "sections",
					Err: fmt.Errorf("section %s has no draft at %s", section, env.Layout.Rel(path))}
			}
			return &stage.VerificationError{Stage: name, Check: "sections", Err: err}
		}
		words := wordCount(string(body))
		if limits, ok := env.Config.SectionLimitsFor(section); ok {
			if limits.MinWords > 0 && words < limits.MinWords {
				return &stage.VerificationError{Stage: name, Check: "word_limits",
					Err: fmt.Errorf("section %s has %d words, below minimum %d", section, words, limits.MinWords)}
			}
			if limits.MaxWords > 0 && words > limits.MaxWords {
				return &stage.VerificationError{Stage: name, Check: "word_limits",
					Err: fmt.Errorf("section %s has %d words, above maximum %d", section, words, limits.MaxWords)}
			}
		}
		violations, err := validator.ValidateSection(name, section, string(body))
		if err != nil {
			return &stage.VerificationError{Stage: name, Check: "citations", Err: err}
		}
		if len(violations) > 0 && env.Config.PolicyStrict() {
			return &stage.VerificationError{Stage: name, Check: "citation_policy",
				Err: fmt.Errorf("section %s: %s", section, violations[0].Message)}
		}
	}
	return nil
}

// Assembly merges the section drafts into the final manuscript.
type Assembly struct{}

func (Assembly) Info() stage.Info {
	return stage.Info{Name: pipeline.StageAssembly, Description: "Assemble sections into the manuscript"}
}

func (Assembly) Inputs(l *manuscript.Layout) []string {
	inputs := make([]string, 0, len(manuscript.DefaultSections)+1)
	for _, section := range manuscript.DefaultSections {
		inputs = append(inputs, l.SectionPath(section))
	}
	return append(inputs, l.BibPath())
}

func (Assembly) Outputs(l *manuscript.Layout) []string {
	return []string{l.ManuscriptPath(), l.ManifestPath()}
}

// Verify enforces the journal's total word limit and citation completeness between
// the assembled text and the bibliography.
func (s Assembly) Verify(_ context.Context, env *stage.Env) error {
	name := s.Info().Name
	if err := requireNonEmpty(name, env.Layout.ManuscriptPath()); err != nil {
		return err
	}
	if err := requireNonEmpty(name, env.Layout.ManifestPath()); err != nil {
		return err
	}
	if limit := env.Config.Manuscript.TotalWordLimit; limit > 0 {
		body, err := os.ReadFile(env.Layout.ManuscriptPath())
		if err != nil {
			return &stage.VerificationError{Stage: name, Check: "word_limits", Err: err}
		}
		if words := wordCount(string(body)); words > limit {
			return &stage.VerificationError{Stage: name, Check: "word_limits",
				Err: fmt.Errorf("manuscript has %d words, above journal limit %d", words, limit)}
		}
	}
	store, err := citation.LoadStore(env.Layout.EvidencePath())
	if err != nil {
		return &stage.VerificationError{Stage: name, Check: "evidence", Err: err}
	}
	validator := citation.NewValidator(store, citation.PoliciesFromConfig(env.Config), env.Audit)
	if err := validator.ValidateCompleteness(env.Layout.ManuscriptPath(), env.Layout.BibPath()); err != nil {
		return &stage.VerificationError{Stage: name, Check: "citation_completeness", Err: err}
	}
	return nil
}

// Review critiques the assembled manuscript.
type Review struct{}

func (Review) Info() stage.Info {
	return stage.Info{Name: pipeline.StageReview, Description: "Critique the assembled manuscript"}
}

func (Review) Inputs(l *manuscript.Layout) []string {
	return []string{l.ManuscriptPath()}
}

func (Review) Outputs(l *manuscript.Layout) []string {
	return []string{l.CritiquePath()}
}

func (s Review) Verify(_ context.Context, env *stage.Env) error {
	return requireNonEmpty(s.Info().Name, env.Layout.CritiquePath())
}

func requireNonEmpty(stageName, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &stage.VerificationError{Stage: stageName, Check: "outputs",
				Err: fmt.Errorf("%s was not produced", path)}
		}
		return &stage.VerificationError{Stage: stageName, Check: "outputs", Err: err}
	}
	if info.Size() == 0 {
		return &stage.VerificationError{Stage: stageName, Check: "outputs",
			Err: fmt.Errorf("%s is empty", path)}
	}
	return nil
}

func wordCount(body string) int {
	return len(strings.Fields(body))
}
