package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/pipeline"
)

func TestRunCommandExecutesRegisteredPipeline(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Registry.Register(pipeline.Definition{
		Name: "demo",
		Steps: []pipeline.StepDefinition{{Name: "a", Handler: func(ctx context.Context, sctx pipeline.StepContext) (pipeline.StepResult, error) {
			return pipeline.Success(nil), nil
		}}},
	}))

	cmd := newRunCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"demo"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "succeeded")
}

func TestRunCommandRejectsUnknownPipeline(t *testing.T) {
	app := newTestApp(t)

	cmd := newRunCmd(app)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"does-not-exist"})
	err := cmd.Execute()
	require.Error(t, err)
}
