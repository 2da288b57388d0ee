package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/storage"
)

func TestCreateIfAbsentIsIdempotentByName(t *testing.T) {
	t.Parallel()

	store := New().Stores()
	ctx := context.Background()

	first, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "nightly-etl"})
	require.NoError(t, err)

	second, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "nightly-etl", Description: "ignored"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Empty(t, second.Description)
}

func TestRunStoreCreateAndUpdateStatus(t *testing.T) {
	t.Parallel()

	store := New().Stores()
	ctx := context.Background()

	pl, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "nightly-etl"})
	require.NoError(t, err)

	run, err := store.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
	require.NoError(t, err)
	require.Equal(t, storage.RunPending, run.Status)

	require.NoError(t, store.Runs.UpdateStatus(ctx, run.ID, storage.RunRunning, nil))

	detail, err := store.Runs.FindByID(ctx, run.ID, false)
	require.NoError(t, err)
	require.Equal(t, storage.RunRunning, detail.Run.Status)
}

func TestFindFirstPendingForUpdateReturnsOldest(t *testing.T) {
	t.Parallel()

	store := New().Stores()
	ctx := context.Background()

	pl, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "nightly-etl"})
	require.NoError(t, err)

	var claimed, older *storage.Run
	err = store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := store.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
		if err != nil {
			return err
		}
		older, err = store.Runs.Create(ctx, storage.Run{PipelineID: pl.ID, StartedAt: time.Now().UTC().Add(-time.Minute)})
		if err != nil {
			return err
		}
		claimed, err = store.Runs.FindFirstPendingForUpdate(ctx)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, older.ID, claimed.ID)
}

func TestStepStoreConcurrentUpdatesDoNotRace(t *testing.T) {
	t.Parallel()

	store := New().Stores()
	ctx := context.Background()

	pl, err := store.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "diamond"})
	require.NoError(t, err)
	run, err := store.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, name := range []string{"b", "c"} {
		step, err := store.Steps.CreateForRun(ctx, storage.Step{RunID: run.ID, Name: name})
		require.NoError(t, err)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = store.Steps.UpdateStatus(ctx, id, storage.StepStatusUpdate{Status: storage.StepSuccess, AttemptCount: 1})
		}(step.ID)
	}
	wg.Wait()

	steps, err := store.Steps.ListForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, s := range steps {
		require.Equal(t, storage.StepSuccess, s.Status)
	}
}
