// Package executor runs exactly one StepDefinition against a run's shared
// execution context and persists every state transition: running, retrying
// with a computed backoff, and the terminal success or failed/exhausted
// outcome.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/pipeline"
	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

const backoffBaseSeconds = 30
const backoffCapSeconds = 300

// CalculateBackoff is the pure retry-delay function: min(base*2^(k-1), cap)
// seconds, 1-indexed on the attempt number k. Exposed so CLI output and
// tests can project retry timing without re-running the loop.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := float64(backoffBaseSeconds) * math.Pow(2, float64(attempt-1))
	if seconds > backoffCapSeconds {
		seconds = backoffCapSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

// Executor runs individual steps and persists their attempt history.
type Executor struct {
	Steps                storage.StepStore
	Log                  *logger.Logger
	RetryDelayMultiplier float64 // process-wide scalar; 1 in production, <1 in tests
}

// New constructs an Executor. A zero or negative multiplier is treated as 1.
func New(steps storage.StepStore, log *logger.Logger, retryDelayMultiplier float64) *Executor {
	if retryDelayMultiplier <= 0 {
		retryDelayMultiplier = 1
	}
	return &Executor{Steps: steps, Log: log, RetryDelayMultiplier: retryDelayMultiplier}
}

// ExecuteStep runs step to completion: success, or exhaustion after
// step.Config.EffectiveMaxRetries()+1 attempts. On success it records the
// StepResult into state. It returns a *pipeerrors.StepExhaustedError on
// exhaustion, or the raw storage error if persistence itself fails.
func (e *Executor) ExecuteStep(ctx context.Context, runID, pipelineID string, step pipeline.StepDefinition, state *RunState) error {
	maxRetries := step.Config.EffectiveMaxRetries()
	var recordID string
	var lastErr error

	for attempt := 1; ; attempt++ {
		now := time.Now().UTC()
		if attempt == 1 {
			record, err := e.Steps.CreateForRun(ctx, storage.Step{
				RunID:        runID,
				Name:         step.Name,
				Status:       storage.StepRunning,
				StartedAt:    &now,
				AttemptCount: 1,
			})
			if err != nil {
				return err
			}
			recordID = record.ID
		} else {
			if err := e.Steps.UpdateStatus(ctx, recordID, storage.StepStatusUpdate{
				Status:       storage.StepRetrying,
				StartedAt:    &now,
				AttemptCount: attempt,
			}); err != nil {
				return err
			}
		}

		stepCtx := pipeline.StepContext{
			RunID:       runID,
			PipelineID:  pipelineID,
			PrevResults: state.Snapshot(),
		}

		result, handlerErr := e.invoke(ctx, step, stepCtx)
		if handlerErr == nil && result.IsSuccess() {
			finishedAt := time.Now().UTC()
			serialized, serializeErr := serializeData(result.Data)
			if serializeErr != nil {
				return serializeErr
			}
			if err := e.Steps.UpdateStatus(ctx, recordID, storage.StepStatusUpdate{
				Status:       storage.StepSuccess,
				StartedAt:    &now,
				FinishedAt:   &finishedAt,
				AttemptCount: attempt,
			}); err != nil {
				return err
			}
			if err := e.Steps.UpdateResult(ctx, recordID, serialized, nil); err != nil {
				return err
			}
			state.Set(step.Name, result)
			return nil
		}

		if handlerErr != nil {
			lastErr = handlerErr
		} else {
			lastErr = errors.New(result.Message)
		}

		if e.Log != nil {
			e.Log.Warn("step attempt failed", "step", step.Name, "attempt", attempt, "error", lastErr)
		}

		if attempt > maxRetries {
			finishedAt := time.Now().UTC()
			errMsg := lastErr.Error()
			if err := e.Steps.UpdateStatus(ctx, recordID, storage.StepStatusUpdate{
				Status:       storage.StepFailed,
				StartedAt:    &now,
				FinishedAt:   &finishedAt,
				AttemptCount: attempt,
			}); err != nil {
				return err
			}
			if err := e.Steps.UpdateResult(ctx, recordID, nil, &errMsg); err != nil {
				return err
			}
			return pipeerrors.NewStepExhaustedError(step.Name, attempt, lastErr)
		}

		backoff := CalculateBackoff(attempt)
		nextRetryAt := time.Now().UTC().Add(backoff)
		errMsg := lastErr.Error()
		if err := e.Steps.UpdateStatus(ctx, recordID, storage.StepStatusUpdate{
			Status:       storage.StepRetrying,
			StartedAt:    &now,
			AttemptCount: attempt,
			NextRetryAt:  &nextRetryAt,
		}); err != nil {
			return err
		}
		if err := e.Steps.UpdateResult(ctx, recordID, nil, &errMsg); err != nil {
			return err
		}

		sleep := time.Duration(float64(backoff) * e.RetryDelayMultiplier)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// invoke races the handler against step.Config.Timeout when set.
func (e *Executor) invoke(ctx context.Context, step pipeline.StepDefinition, stepCtx pipeline.StepContext) (result pipeline.StepResult, err error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if step.Config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, step.Config.Timeout)
		defer cancel()
	}

	type outcome struct {
		result pipeline.StepResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errorFromRecover(r)}
			}
		}()
		res, handlerErr := step.Handler(runCtx, stepCtx)
		done <- outcome{result: res, err: handlerErr}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-runCtx.Done():
		if step.Config.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return pipeline.StepResult{}, pipeerrors.NewTimeoutError(step.Name, step.Config.Timeout)
		}
		return pipeline.StepResult{}, runCtx.Err()
	}
}

func errorFromRecover(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("step handler panicked")
}

func serializeData(data any) (*string, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, pipeerrors.NewValidationError("result", "failed to serialize step result", err)
	}
	s := string(raw)
	return &s, nil
}
