// Package pipeline declares the stage graph a manuscript run executes. The
// definition is data: which stages exist, what each depends on, and the order
// assembly walks them. Execution semantics live in the engine and resolver
// subpackages.
package pipeline

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// DependencyGraph maps stage names to the stages they depend on.
type DependencyGraph map[string][]string

// Clone returns a deep copy of the graph.
func (g DependencyGraph) Clone() DependencyGraph {
	if len(g) == 0 {
		return nil
	}
	out := make(DependencyGraph, len(g))
	for key, deps := range g {
		if len(deps) == 0 {
			out[key] = nil
			continue
		}
		clone := make([]string, len(deps))
		copy(clone, deps)
		out[key] = clone
	}
	return out
}

// StageRef declares one stage in a pipeline definition.
type StageRef struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Clone returns a deep copy of the stage reference.
func (ref StageRef) Clone() StageRef {
	clone := StageRef{Name: ref.Name, Description: ref.Description}
	if len(ref.DependsOn) > 0 {
		clone.DependsOn = make([]string, len(ref.DependsOn))
		copy(clone.DependsOn, ref.DependsOn)
	}
	return clone
}

// Validate ensures the reference is usable.
func (ref StageRef) Validate() error {
	if ref.Name == "" {
		return fmt.Errorf("pipeline: stage name is required")
	}
	deps := append([]string{}, ref.DependsOn...)
	sort.Strings(deps)
	for i := 1; i < len(deps); i++ {
		if deps[i] == deps[i-1] {
			return fmt.Errorf("pipeline: stage %s has duplicate dependency on %s", ref.Name, deps[i])
		}
	}
	return nil
}

// Definition declares an executable stage graph.
type Definition struct {
	ID     string          `json:"id" yaml:"id"`
	Name   string          `json:"name,omitempty" yaml:"name,omitempty"`
	Stages []StageRef      `json:"stages" yaml:"stages"`
	Graph  DependencyGraph `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{ID: def.ID, Name: def.Name, Graph: def.Graph.Clone()}
	if len(def.Stages) > 0 {
		clone.Stages = make([]StageRef, len(def.Stages))
		for i, ref := range def.Stages {
			clone.Stages[i] = ref.Clone()
		}
	}
	return clone
}

// Validate ensures the definition is self-consistent and acyclic.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("pipeline: id is required")
	}
	if len(def.Stages) == 0 {
		return fmt.Errorf("pipeline %s: at least one stage is required", def.ID)
	}
	seen := map[string]struct{}{}
	for idx, ref := range def.Stages {
		if err := ref.Validate(); err != nil {
			return fmt.Errorf("pipeline %s stage[%d]: %w", def.ID, idx, err)
		}
		if _, exists := seen[ref.Name]; exists {
			return fmt.Errorf("pipeline %s: duplicate stage %s", def.ID, ref.Name)
		}
		seen[ref.Name] = struct{}{}
	}
	for key, deps := range def.Graph {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("pipeline %s: graph references unknown stage %s", def.ID, key)
		}
		for _, dep := range deps {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("pipeline %s: graph dependency %s -> %s references unknown stage", def.ID, key, dep)
			}
		}
	}
	if _, err := def.topoOrder(); err != nil {
		return fmt.Errorf("pipeline %s: %w", def.ID, err)
	}
	return nil
}

// Normalized clones the definition, merges inline depends_on lists into the
// graph, and validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	if clone.Graph == nil {
		clone.Graph = DependencyGraph{}
	}
	for _, ref := range clone.Stages {
		clone.Graph[ref.Name] = mergeDependencies(clone.Graph[ref.Name], ref.DependsOn)
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// StageNames returns stage names in declaration order.
func (def Definition) StageNames() []string {
	names := make([]string, 0, len(def.Stages))
	for _, ref := range def.Stages {
		names = append(names, ref.Name)
	}
	return names
}

// Dependencies returns the dependency list for a stage.
func (def Definition) Dependencies(name string) []string {
	if def.Graph == nil {
		return nil
	}
	deps := def.Graph[name]
	if len(deps) == 0 {
		return nil
	}
	clone := make([]string, len(deps))
	copy(clone, deps)
	return clone
}

// Dependents returns the stages that depend on name, in declaration order.
func (def Definition) Dependents(name string) []string {
	var out []string
	for _, ref := range def.Stages {
		for _, dep := range def.Dependencies(ref.Name) {
			if dep == name {
				out = append(out, ref.Name)
				break
			}
		}
	}
	return out
}

// TopoOrder returns every stage in a dependency-respecting order that also
// preserves declaration order among independent stages.
func (def Definition) TopoOrder() ([]string, error) {
	return def.topoOrder()
}

func (def Definition) topoOrder() ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	var order []string
	var visit func(string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle through %s", name)
		}
		state[name] = visiting
		for _, dep := range def.Dependencies(name) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}
	for _, ref := range def.Stages {
		if err := visit(ref.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Parse decodes a YAML pipeline definition and normalizes it.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("pipeline: parse definition: %w", err)
	}
	return def.Normalized()
}

func mergeDependencies(existing, adds []string) []string {
	if len(adds) == 0 && len(existing) == 0 {
		return nil
	}
	set := map[string]struct{}{}
	for _, name := range existing {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	for _, name := range adds {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
