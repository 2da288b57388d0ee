// Package dag compiles a pipeline definition's ordered step list into a
// validated dependency graph using Kahn's algorithm for cycle detection,
// exposing direct per-step dependency sets for the run executor's
// continuous (non-level-barrier) scheduling loop.
package dag

import (
	"sort"

	"github.com/flowforge/pipeline/internal/pipeline"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// Graph is the compiled dependency graph for one pipeline definition.
type Graph struct {
	// order is the declaration order of steps, used as the tie-breaker for
	// launch order within the run executor.
	order []string
	// dependsOn maps a step name to the set of step names it directly
	// depends on.
	dependsOn map[string]map[string]struct{}
}

// Steps returns the declared steps in declaration order.
func (g *Graph) Steps() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// DependsOn returns the direct dependency set of the named step, sorted for
// deterministic output.
func (g *Graph) DependsOn(name string) []string {
	deps := g.dependsOn[name]
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Satisfied reports whether every dependency of the named step is present
// in the completed set.
func (g *Graph) Satisfied(name string, completed map[string]struct{}) bool {
	for dep := range g.dependsOn[name] {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// Build compiles the ordered step list into a Graph, applying the rules:
//
//  1. step names must be unique within the pipeline.
//  2. an explicit dependsOn entry must name a step that exists and was
//     declared earlier in the list; forward and self references are
//     rejected.
//  3. a step with no explicit dependsOn depends on every step declared
//     before it (the sequential default, kept for pipelines written before
//     explicit edges existed).
//  4. the resulting graph is acyclic by construction of rule 2, and this
//     is verified defensively with a topological sort.
func Build(steps []pipeline.StepDefinition) (*Graph, error) {
	g := &Graph{
		order:     make([]string, 0, len(steps)),
		dependsOn: make(map[string]map[string]struct{}, len(steps)),
	}

	index := make(map[string]int, len(steps))

	for i, step := range steps {
		if _, exists := index[step.Name]; exists {
			return nil, pipeerrors.NewValidationError("steps", "duplicate step name "+step.Name, nil)
		}
		index[step.Name] = i
		g.order = append(g.order, step.Name)
		g.dependsOn[step.Name] = make(map[string]struct{})
	}

	for _, step := range steps {
		if len(step.Config.DependsOn) == 0 {
			for _, earlier := range g.order[:index[step.Name]] {
				g.dependsOn[step.Name][earlier] = struct{}{}
			}
			continue
		}

		for _, dep := range step.Config.DependsOn {
			if dep == step.Name {
				return nil, pipeerrors.NewValidationError("steps", "step "+step.Name+" cannot depend on itself", nil)
			}
			depIndex, ok := index[dep]
			if !ok {
				return nil, pipeerrors.NewValidationError("steps", "step "+step.Name+" depends on unknown step "+dep, nil)
			}
			if depIndex >= index[step.Name] {
				return nil, pipeerrors.NewValidationError("steps", "step "+step.Name+" depends on "+dep+" which is not declared earlier", nil)
			}
			g.dependsOn[step.Name][dep] = struct{}{}
		}
	}

	if err := verifyAcyclic(g); err != nil {
		return nil, err
	}

	return g, nil
}

// verifyAcyclic runs Kahn's algorithm over the compiled graph. Given rule 2
// of Build, a cycle should be unreachable; this check exists purely as a
// defensive backstop.
func verifyAcyclic(g *Graph) error {
	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		indegree[name] = len(g.dependsOn[name])
	}
	for name, deps := range g.dependsOn {
		for dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range dependents[current] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if processed != len(g.order) {
		return pipeerrors.NewValidationError("steps", "cycle detected while compiling dependency graph", nil)
	}
	return nil
}
