package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/executor"
	"github.com/flowforge/pipeline/internal/pipeline"
	"github.com/flowforge/pipeline/internal/recovery"
	"github.com/flowforge/pipeline/internal/registry"
	"github.com/flowforge/pipeline/internal/runexec"
	"github.com/flowforge/pipeline/internal/storage/memstore"
)

func newTestApp(t *testing.T) *AppContext {
	t.Helper()
	stores := memstore.New().Stores()
	reg := registry.New()
	stepExec := executor.New(stores.Steps, nil, 1)
	runExec := runexec.New(stores, stepExec, nil)
	recoveryOrch := recovery.New(stores, reg, runExec, nil, 0)
	return &AppContext{Stores: stores, Registry: reg, RunExecutor: runExec, Recovery: recoveryOrch}
}

func TestListCommandPrintsRegisteredPipelines(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Registry.Register(pipeline.Definition{
		Name: "nightly-etl",
		Steps: []pipeline.StepDefinition{{Name: "a", Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			return pipeline.Success(nil), nil
		}}},
	}))

	cmd := newListCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "nightly-etl")
}

func TestListCommandReportsEmptyRegistry(t *testing.T) {
	app := newTestApp(t)

	cmd := newListCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "no pipelines registered")
}
