package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/internal/examplesteps"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFileResolvesHandlersAndDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "nightly.yaml", `
name: nightly-etl
description: extracts then loads
steps:
  - name: extract
    handler: echo
  - name: load
    handler: echo
    dependsOn: [extract]
`)

	def, err := LoadFile(filepath.Join(dir, "nightly.yaml"), HandlerRegistry(examplesteps.Registry))
	require.NoError(t, err)
	require.Equal(t, "nightly-etl", def.Name)
	require.Len(t, def.Steps, 2)
	require.Equal(t, []string{"extract"}, def.Steps[1].Config.DependsOn)
}

func TestLoadFileRejectsUnknownHandler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `
name: bad
steps:
  - name: a
    handler: does-not-exist
`)

	_, err := LoadFile(filepath.Join(dir, "bad.yaml"), HandlerRegistry(examplesteps.Registry))
	require.Error(t, err)
}

func TestLoadDirReturnsSortedDefinitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "name: b\nsteps:\n  - name: a\n    handler: echo\n")
	writeFile(t, dir, "a.yaml", "name: a\nsteps:\n  - name: a\n    handler: echo\n")
	writeFile(t, dir, "notes.txt", "ignore me")

	defs, err := LoadDir(dir, HandlerRegistry(examplesteps.Registry))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "a", defs[0].Name)
	require.Equal(t, "b", defs[1].Name)
}
