package pipeline

import (
	"context"
	"regexp"
	"time"
)

var stepNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Outcome tags the two shapes a step handler can report success or failure
// with, so the executor can never mistake a missing error string for a
// success the way a bare boolean-plus-optional-fields struct would allow.
type Outcome int

const (
	// OutcomeSuccess marks a handler invocation that completed normally.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure marks a handler invocation that reported a
	// recoverable failure without panicking or returning a Go error.
	OutcomeFailure
)

// StepResult is the tagged-variant outcome returned by a step handler: a
// caller constructs one via Success or Failure, never both fields at once.
type StepResult struct {
	Outcome Outcome
	Data    any
	Message string
}

// Success builds a successful StepResult, optionally carrying a result
// payload that is persisted as the Step row's JSON result.
func Success(data any) StepResult {
	return StepResult{Outcome: OutcomeSuccess, Data: data}
}

// Failure builds a recoverable-failure StepResult.
func Failure(message string) StepResult {
	return StepResult{Outcome: OutcomeFailure, Message: message}
}

// IsSuccess reports whether the result represents a successful attempt.
func (r StepResult) IsSuccess() bool {
	return r.Outcome == OutcomeSuccess
}

// StepContext is the read-only view of execution state handed to a step
// handler. Handlers must not mutate PrevResults; only the run executor
// writes to the backing map, upon a step's completion.
type StepContext struct {
	RunID      string
	PipelineID string
	PrevResults map[string]StepResult
	Metadata   map[string]interface{}
}

// StepHandlerFunc is user-supplied domain logic for one step. The core only
// invokes it and persists whatever it declares; it never inspects what the
// handler actually does. A non-nil error return is treated identically to a
// panic recovered by the executor: a recoverable failure using the error's
// message.
type StepHandlerFunc func(ctx context.Context, sctx StepContext) (StepResult, error)

// StepConfig configures one step's retry and scheduling behaviour.
type StepConfig struct {
	// MaxRetries defaults to 3 when nil.
	MaxRetries *int
	// Timeout of zero means the handler is never raced against a deadline.
	Timeout time.Duration
	// DependsOn names steps that must complete before this one starts. If
	// empty, the dependency graph builder applies the sequential default:
	// every step declared earlier in Steps.
	DependsOn []string
}

// EffectiveMaxRetries returns the configured retry budget or the default of 3.
func (c StepConfig) EffectiveMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	if *c.MaxRetries < 0 {
		return 0
	}
	return *c.MaxRetries
}

// StepDefinition is one node of a pipeline's DAG.
type StepDefinition struct {
	Name    string
	Handler StepHandlerFunc
	Config  StepConfig
}

// Validate ensures the step definition satisfies the core's invariants.
func (s StepDefinition) Validate() error {
	if s.Name == "" {
		return newMissingFieldError("name")
	}
	if !stepNamePattern.MatchString(s.Name) {
		return newValidationError("step name must match ^[a-zA-Z0-9_-]+$", map[string]interface{}{"step": s.Name})
	}
	if s.Handler == nil {
		return newMissingFieldError("handler")
	}
	if s.Config.MaxRetries != nil && *s.Config.MaxRetries < 0 {
		return newValidationError("maxRetries must be non-negative", map[string]interface{}{"step": s.Name})
	}
	if s.Config.Timeout < 0 {
		return newValidationError("timeout must be non-negative", map[string]interface{}{"step": s.Name})
	}
	return nil
}
