// Package examplesteps provides a handful of illustrative step handlers —
// echo, fail, sleep — used only by tests and the run CLI's demo pipelines.
// They are not part of the execution core.
package examplesteps

import (
	"context"
	"time"

	"github.com/flowforge/pipeline/internal/pipeline"
)

// Echo returns its configured message as the step's result data.
func Echo(message string) pipeline.StepHandlerFunc {
	return func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
		return pipeline.Success(message), nil
	}
}

// Fail always reports a recoverable failure with the given message, useful
// for exercising the retry and exhaustion paths end to end.
func Fail(message string) pipeline.StepHandlerFunc {
	return func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
		return pipeline.Failure(message), nil
	}
}

// Sleep blocks for d, respecting context cancellation, then succeeds. It
// exists to exercise per-step timeout handling.
func Sleep(d time.Duration) pipeline.StepHandlerFunc {
	return func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
		select {
		case <-time.After(d):
			return pipeline.Success(nil), nil
		case <-ctx.Done():
			return pipeline.StepResult{}, ctx.Err()
		}
	}
}

// Registry is the name -> handler lookup used by the loader to resolve
// pipeline files' declared step handler names into StepHandlerFuncs.
var Registry = map[string]pipeline.StepHandlerFunc{
	"echo":  Echo("hello"),
	"fail":  Fail("example failure"),
	"sleep": Sleep(100 * time.Millisecond),
}
