package executor

import (
	"sync"

	"github.com/flowforge/pipeline/internal/pipeline"
)

// RunState holds the shared, mutable `ctx.stepResults` map for a single run.
// Multiple step executions complete concurrently as the Run Executor's DAG
// loop drains its in-flight set, so every read/write goes through the lock
// rather than relying on a single-writer assumption.
type RunState struct {
	mu      sync.Mutex
	results map[string]pipeline.StepResult
}

// NewRunState creates a RunState, optionally seeded with already-completed
// results (used by the Recovery Orchestrator's reconstructContext).
func NewRunState(seed map[string]pipeline.StepResult) *RunState {
	results := make(map[string]pipeline.StepResult, len(seed))
	for name, result := range seed {
		results[name] = result
	}
	return &RunState{results: results}
}

// Snapshot returns a point-in-time copy of completed results, used to build
// the StepContext.PrevResults passed into a handler invocation.
func (s *RunState) Snapshot() map[string]pipeline.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]pipeline.StepResult, len(s.results))
	for name, result := range s.results {
		out[name] = result
	}
	return out
}

// Set records the final result of a completed step.
func (s *RunState) Set(name string, result pipeline.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[name] = result
}

// Has reports whether name has already completed.
func (s *RunState) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[name]
	return ok
}

// Names returns the set of step names present in the state, for membership
// checks against the completed set.
func (s *RunState) Names() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.results))
	for name := range s.results {
		out[name] = struct{}{}
	}
	return out
}
