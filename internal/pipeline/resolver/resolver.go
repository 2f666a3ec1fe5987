// Package resolver decides which stages of a run must execute again. It
// compares recorded input digests and dependency rerun counters against the
// current filesystem and produces an ordered rerun set with a typed reason
// for every decision.
package resolver

import (
	"fmt"
	"sort"

	"github.com/kmreade/scrivener/internal/checksum"
	"github.com/kmreade/scrivener/internal/manuscript"
	"github.com/kmreade/scrivener/internal/pipeline"
)

// ReasonCode classifies why a stage does or does not need a rerun.
type ReasonCode string

const (
	ReasonUpToDate             ReasonCode = "up_to_date"
	ReasonNotCompleted         ReasonCode = "not_completed"
	ReasonInputChanged         ReasonCode = "input_changed"
	ReasonDependencyIncomplete ReasonCode = "dependency_incomplete"
	ReasonDependencyRerun      ReasonCode = "dependency_rerun"
)

// Reason pairs a code with its subject: the changed input path or the
// dependency stage that triggered the decision.
type Reason struct {
	Code   ReasonCode
	Detail string
}

func (r Reason) String() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s:%s", r.Code, r.Detail)
}

// Decision is the resolver's verdict for one stage.
type Decision struct {
	Stage  string
	Rerun  bool
	Reason Reason
}

// InputLister reports the absolute input paths a stage reads.
type InputLister func(stage string) []string

// Resolver evaluates staleness for one run.
type Resolver struct {
	def    pipeline.Definition
	state  *pipeline.State
	layout *manuscript.Layout
	inputs InputLister
}

// New builds a resolver over the run's definition, persisted state, and
// layout. The input lister supplies each stage's declared input paths.
func New(def pipeline.Definition, state *pipeline.State, layout *manuscript.Layout, inputs InputLister) *Resolver {
	return &Resolver{def: def, state: state, layout: layout, inputs: inputs}
}

// NeedsRerun evaluates one stage in isolation. Checks run in precedence
// order: completion first, then input digests, then dependency state. The
// first trigger wins so the reported reason is deterministic.
func (r *Resolver) NeedsRerun(stage string) (bool, Reason, error) {
	record, ok := r.state.Stages[stage]
	if !ok {
		return true, Reason{Code: ReasonNotCompleted}, nil
	}
	if record.Status != pipeline.StatusCompleted {
		return true, Reason{Code: ReasonNotCompleted}, nil
	}
	for _, path := range r.stageInputs(stage) {
		previous := record.Inputs[r.layout.Rel(path)]
		changed, err := checksum.Changed(path, previous)
		if err != nil {
			return false, Reason{}, fmt.Errorf("resolver: check %s input %s: %w", stage, path, err)
		}
		if changed {
			return true, Reason{Code: ReasonInputChanged, Detail: r.layout.Rel(path)}, nil
		}
	}
	for _, dep := range r.def.Dependencies(stage) {
		depRecord, ok := r.state.Stages[dep]
		if !ok || depRecord.Status != pipeline.StatusCompleted {
			return true, Reason{Code: ReasonDependencyIncomplete, Detail: dep}, nil
		}
		if depRecord.RerunCount > record.DepReruns[dep] {
			return true, Reason{Code: ReasonDependencyRerun, Detail: dep}, nil
		}
	}
	return false, Reason{Code: ReasonUpToDate}, nil
}

// Plan evaluates every stage in topological order, propagating staleness
// downstream: a stage whose dependency is in the rerun set joins the set even
// when its own record still looks current. One pass suffices because the
// order guarantees dependencies are decided first.
func (r *Resolver) Plan() ([]Decision, error) {
	order, err := r.def.TopoOrder()
	if err != nil {
		return nil, err
	}
	stale := make(map[string]bool, len(order))
	decisions := make([]Decision, 0, len(order))
	for _, stage := range order {
		rerun, reason, err := r.NeedsRerun(stage)
		if err != nil {
			return nil, err
		}
		if !rerun {
			for _, dep := range r.def.Dependencies(stage) {
				if stale[dep] {
					rerun = true
					reason = Reason{Code: ReasonDependencyRerun, Detail: dep}
					break
				}
			}
		}
		stale[stage] = rerun
		decisions = append(decisions, Decision{Stage: stage, Rerun: rerun, Reason: reason})
	}
	return decisions, nil
}

// RerunSet returns just the stages that must execute, in execution order.
func (r *Resolver) RerunSet() ([]Decision, error) {
	decisions, err := r.Plan()
	if err != nil {
		return nil, err
	}
	var out []Decision
	for _, decision := range decisions {
		if decision.Rerun {
			out = append(out, decision)
		}
	}
	return out, nil
}

// ChangedInputs lists the inputs of a stage whose digests no longer match the
// record, sorted for stable output.
func (r *Resolver) ChangedInputs(stage string) ([]string, error) {
	record, ok := r.state.Stages[stage]
	if !ok {
		return nil, nil
	}
	var changed []string
	for _, path := range r.stageInputs(stage) {
		rel := r.layout.Rel(path)
		ok, err := checksum.Changed(path, record.Inputs[rel])
		if err != nil {
			return nil, fmt.Errorf("resolver: check %s input %s: %w", stage, path, err)
		}
		if ok {
			changed = append(changed, rel)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func (r *Resolver) stageInputs(stage string) []string {
	if r.inputs == nil {
		return nil
	}
	return r.inputs(stage)
}
