// Package pipeline holds the in-memory pipeline/step definition model:
// the stable catalogue entries that get validated once at registration
// and then read repeatedly by the DAG builder, the step executor, and the
// recovery orchestrator. It carries no storage or transport dependency —
// those live in internal/storage and internal/registry respectively.
package pipeline

import "fmt"

// Definition is a named, versionless workflow: an ordered list of steps and
// their dependencies, plus an optional cron-like schedule string that is
// interpreted by the out-of-scope front-end, not the core.
type Definition struct {
	Name        string
	Description string
	Schedule    string
	Steps       []StepDefinition
}

// Validate ensures the pipeline definition is well-formed independent of
// any particular run: non-empty name, at least one step, and unique step
// names. Dependency legality (existence, ordering, cycles) is the Dependency
// Graph Builder's concern, not this method's — a definition can be
// structurally valid here and still fail to compile into a DAG later if a
// dependsOn entry is malformed.
func (d Definition) Validate() error {
	if d.Name == "" {
		return newMissingFieldError("name")
	}
	if len(d.Steps) == 0 {
		return newValidationError("pipeline requires at least one step", map[string]interface{}{"pipeline": d.Name})
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for _, step := range d.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
		if _, ok := seen[step.Name]; ok {
			return newDuplicateError(step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	return nil
}

// StepNames returns the declared steps in declaration order.
func (d Definition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// GetStep retrieves a step definition by name.
func (d Definition) GetStep(name string) (*StepDefinition, error) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("step %q not found in pipeline %q", name, d.Name)
}
