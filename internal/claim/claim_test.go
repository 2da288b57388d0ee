package claim

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/storage"
	"github.com/flowforge/pipeline/internal/storage/memstore"
)

func TestClaimPendingReturnsNilWhenEmpty(t *testing.T) {
	t.Parallel()

	c := New(memstore.New().Stores())
	claimed, err := c.ClaimPending(context.Background())
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestClaimPendingClaimsOldestAndOverwritesStartedAt(t *testing.T) {
	t.Parallel()

	stores := memstore.New().Stores()
	ctx := context.Background()

	pl, err := stores.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "nightly-etl"})
	require.NoError(t, err)

	run, err := stores.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
	require.NoError(t, err)
	originalStartedAt := run.StartedAt

	c := New(stores)
	claimed, err := c.ClaimPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, run.ID, claimed.Run.ID)
	require.Equal(t, storage.RunRunning, claimed.Run.Status)
	require.True(t, claimed.Run.StartedAt.After(originalStartedAt) || claimed.Run.StartedAt.Equal(originalStartedAt))
	require.Equal(t, "nightly-etl", claimed.Pipeline.Name)

	second, err := c.ClaimPending(ctx)
	require.NoError(t, err)
	require.Nil(t, second, "a run already claimed must not be claimable again")
}

func TestClaimPendingIsExclusiveUnderConcurrency(t *testing.T) {
	t.Parallel()

	stores := memstore.New().Stores()
	ctx := context.Background()

	pl, err := stores.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: "p"})
	require.NoError(t, err)
	_, err = stores.Runs.Create(ctx, storage.Run{PipelineID: pl.ID})
	require.NoError(t, err)

	c := New(stores)
	var wg sync.WaitGroup
	successes := make(chan *Claimed, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := c.ClaimPending(ctx)
			require.NoError(t, err)
			if claimed != nil {
				successes <- claimed
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	require.Equal(t, 1, count, "exactly one worker must observe the run as claimed")
}
