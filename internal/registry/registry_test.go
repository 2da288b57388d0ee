package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/pipeline"
)

func noopHandler(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
	return pipeline.Success(nil), nil
}

func validDefinition(name string) pipeline.Definition {
	return pipeline.Definition{
		Name:  name,
		Steps: []pipeline.StepDefinition{{Name: "extract", Handler: noopHandler}},
	}
}

func TestRegisterGetAndList(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(validDefinition("nightly-etl")))
	require.NoError(t, r.Register(validDefinition("hourly-sync")))

	require.Equal(t, []string{"hourly-sync", "nightly-etl"}, r.List())
	require.True(t, r.Has("nightly-etl"))
	require.Equal(t, 2, r.Count())

	def, err := r.Get("nightly-etl")
	require.NoError(t, err)
	require.Equal(t, "nightly-etl", def.Name)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(validDefinition("nightly-etl")))

	err := r.Register(validDefinition("nightly-etl"))
	require.Error(t, err)
	require.Equal(t, 1, r.Count())
}

func TestRegisterRejectsEmptySteps(t *testing.T) {
	t.Parallel()

	r := New()
	err := r.Register(pipeline.Definition{Name: "empty"})
	require.Error(t, err)
	require.False(t, r.Has("empty"))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Get("ghost")
	require.Error(t, err)
}

func TestUnregisterAndClear(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(validDefinition("nightly-etl")))

	r.Unregister("nightly-etl")
	require.False(t, r.Has("nightly-etl"))

	require.NoError(t, r.Register(validDefinition("a")))
	require.NoError(t, r.Register(validDefinition("b")))
	r.Clear()
	require.Equal(t, 0, r.Count())
}

func TestConcurrentReadersDoNotRace(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register(validDefinition("nightly-etl")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Get("nightly-etl")
			_ = r.List()
			_ = r.Has("nightly-etl")
		}()
	}
	wg.Wait()
}
