// Package registry holds the process-wide catalogue of validated pipeline
// definitions, keyed by name. It carries no dependency graph of its own —
// step-level dependency resolution belongs to internal/dag, one graph per
// pipeline, compiled lazily by the caller.
package registry

import (
	"sort"
	"sync"

	"github.com/flowforge/pipeline/internal/dag"
	"github.com/flowforge/pipeline/internal/pipeline"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// Registry is a concurrency-safe, name-keyed catalogue of pipeline
// definitions. It is populated once at startup by internal/loader and read
// repeatedly thereafter by the Run Executor, the Worker Loop, and the
// Recovery Orchestrator; no mutation is expected after initial load, but
// readers never block each other.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]pipeline.Definition
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{pipelines: make(map[string]pipeline.Definition)}
}

// Register validates def and inserts it under def.Name. It rejects a
// structurally invalid definition (see pipeline.Definition.Validate), a
// definition whose dependsOn entries do not compile into a dependency graph
// (see dag.Build), and a duplicate name; the registry is left unchanged on
// any of these errors.
func (r *Registry) Register(def pipeline.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := dag.Build(def.Steps); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[def.Name]; exists {
		return pipeerrors.NewValidationError("name", "pipeline "+def.Name+" already registered", nil)
	}
	r.pipelines[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (pipeline.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.pipelines[name]
	if !ok {
		return pipeline.Definition{}, pipeerrors.NewNotFoundError("pipeline", name)
	}
	return def, nil
}

// Has reports whether a definition is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.pipelines[name]
	return ok
}

// List returns registered pipeline names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes the definition registered under name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, name)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines = make(map[string]pipeline.Definition)
}

// Count returns the number of registered pipelines.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}
