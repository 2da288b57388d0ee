package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/pipeline"
	"github.com/flowforge/pipeline/internal/storage"
	"github.com/flowforge/pipeline/internal/storage/memstore"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

func newTestStore(t *testing.T) (storage.Stores, string, string) {
	t.Helper()
	store := memstore.New().Stores()
	ctx := context.Background()

	pl, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "t"})
	require.NoError(t, err)
	run, err := store.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
	require.NoError(t, err)
	return store, run.ID, pl.ID
}

func TestCalculateBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Second, CalculateBackoff(1))
	require.Equal(t, 60*time.Second, CalculateBackoff(2))
	require.Equal(t, 120*time.Second, CalculateBackoff(3))
	require.Equal(t, 240*time.Second, CalculateBackoff(4))
	require.Equal(t, 300*time.Second, CalculateBackoff(5))
	require.Equal(t, 300*time.Second, CalculateBackoff(10))
}

func TestExecuteStepSucceedsOnFirstAttempt(t *testing.T) {
	t.Parallel()

	store, runID, pipelineID := newTestStore(t)
	ex := New(store.Steps, nil, 0.001)

	step := pipeline.StepDefinition{
		Name: "extract",
		Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			return pipeline.Success(map[string]int{"rows": 10}), nil
		},
	}

	state := NewRunState(nil)
	err := ex.ExecuteStep(context.Background(), runID, pipelineID, step, state)
	require.NoError(t, err)

	result, ok := state.Snapshot()["extract"]
	require.True(t, ok)
	require.True(t, result.IsSuccess())

	steps, err := store.Steps.ListForRun(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, storage.StepSuccess, steps[0].Status)
	require.Equal(t, 1, steps[0].AttemptCount)
	require.NotNil(t, steps[0].StartedAt, "StartedAt must survive into the terminal status update")
	require.NotNil(t, steps[0].FinishedAt)
}

func TestExecuteStepRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	store, runID, pipelineID := newTestStore(t)
	ex := New(store.Steps, nil, 0.001)

	attempts := 0
	step := pipeline.StepDefinition{
		Name: "flaky",
		Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			attempts++
			if attempts < 3 {
				return pipeline.Failure("transient"), nil
			}
			return pipeline.Success(nil), nil
		},
	}

	state := NewRunState(nil)
	err := ex.ExecuteStep(context.Background(), runID, pipelineID, step, state)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	steps, err := store.Steps.ListForRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, storage.StepSuccess, steps[0].Status)
	require.Equal(t, 3, steps[0].AttemptCount)
	require.NotNil(t, steps[0].StartedAt, "StartedAt must not be wiped by the intermediate retrying updates")
}

func TestExecuteStepExhaustsRetries(t *testing.T) {
	t.Parallel()

	store, runID, pipelineID := newTestStore(t)
	ex := New(store.Steps, nil, 0.001)

	maxRetries := 1
	step := pipeline.StepDefinition{
		Name:   "always-fails",
		Config: pipeline.StepConfig{MaxRetries: &maxRetries},
		Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			return pipeline.StepResult{}, errors.New("boom")
		},
	}

	state := NewRunState(nil)
	err := ex.ExecuteStep(context.Background(), runID, pipelineID, step, state)
	require.Error(t, err)

	var exhausted *pipeerrors.StepExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)

	steps, err := store.Steps.ListForRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, storage.StepFailed, steps[0].Status)
	require.NotNil(t, steps[0].StartedAt, "StartedAt must survive the exhausted terminal update")
	require.NotNil(t, steps[0].FinishedAt)
}

func TestExecuteStepTimesOut(t *testing.T) {
	t.Parallel()

	store, runID, pipelineID := newTestStore(t)
	ex := New(store.Steps, nil, 0.001)

	zero := 0
	step := pipeline.StepDefinition{
		Name:   "slow",
		Config: pipeline.StepConfig{MaxRetries: &zero, Timeout: 10 * time.Millisecond},
		Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			select {
			case <-ctx.Done():
				return pipeline.StepResult{}, ctx.Err()
			case <-time.After(time.Second):
				return pipeline.Success(nil), nil
			}
		},
	}

	state := NewRunState(nil)
	err := ex.ExecuteStep(context.Background(), runID, pipelineID, step, state)
	require.Error(t, err)

	var exhausted *pipeerrors.StepExhaustedError
	require.ErrorAs(t, err, &exhausted)

	var timeoutErr *pipeerrors.TimeoutError
	require.ErrorAs(t, exhausted.LastErr, &timeoutErr)
}
