// Package stage defines the contract a pipeline stage implements: which
// artifacts it reads and writes, and how its completion is verified at the
// gate. Stages do not produce content themselves; an external agent writes
// the artifacts and the gate checks them.
package stage

import (
	"context"
	"fmt"
	"sort"

	"github.com/kmreade/scrivener/internal/audit"
	"github.com/kmreade/scrivener/internal/config"
	"github.com/kmreade/scrivener/internal/manuscript"
)

// Info identifies a stage.
type Info struct {
	Name        string
	Description string
}

// Env carries the run-scoped collaborators verification may use.
type Env struct {
	Layout *manuscript.Layout
	Config *config.Config
	Audit  *audit.Logger
}

// Stage declares one pipeline stage's artifact surface and gate check.
type Stage interface {
	Info() Info
	// Inputs returns the absolute paths this stage reads. Digests of these
	// are captured at completion and drive staleness detection.
	Inputs(layout *manuscript.Layout) []string
	// Outputs returns the absolute paths this stage must produce.
	Outputs(layout *manuscript.Layout) []string
	// Verify checks the stage's outputs before completion is recorded.
	Verify(ctx context.Context, env *Env) error
}

// VerificationError reports a failed gate check.
type VerificationError struct {
	Stage string
	Check string
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("stage %s failed %s check: %v", e.Stage, e.Check, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Registry maps stage names to implementations.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: map[string]Stage{}}
}

// Register adds a stage. Duplicate names are a programming error.
func (r *Registry) Register(s Stage) error {
	name := s.Info().Name
	if name == "" {
		return fmt.Errorf("stage: name is required")
	}
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("stage: %s already registered", name)
	}
	r.stages[name] = s
	return nil
}

// Get retrieves a stage by name.
func (r *Registry) Get(name string) (Stage, error) {
	s, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("stage: unknown stage %s", name)
	}
	return s, nil
}

// Names returns registered stage names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
