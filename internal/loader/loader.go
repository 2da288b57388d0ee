// Package loader reads pipeline definition files from a directory and
// builds pipeline.Definition values from them. Go has no equivalent of a
// file "exposing a default export" with executable code, so a loaded file
// declares step handler *names* that are resolved through an explicit
// HandlerRegistry the embedding program populates at startup — domain step
// implementations stay out of the execution core.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/pipeline/internal/pipeline"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// HandlerRegistry resolves a step's declared handler name to the function
// that implements it.
type HandlerRegistry map[string]pipeline.StepHandlerFunc

// Lookup returns the handler registered under name.
func (r HandlerRegistry) Lookup(name string) (pipeline.StepHandlerFunc, bool) {
	handler, ok := r[name]
	return handler, ok
}

// fileStep is the on-disk shape of one step within a pipeline file.
type fileStep struct {
	Name       string   `yaml:"name"`
	Handler    string   `yaml:"handler"`
	DependsOn  []string `yaml:"dependsOn"`
	MaxRetries *int     `yaml:"maxRetries"`
	TimeoutMs  int      `yaml:"timeoutMs"`
}

// filePipeline is the on-disk shape of a pipeline definition file,
// corresponding to one file's pipeline discovery contract.
type filePipeline struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Schedule    string     `yaml:"schedule"`
	Steps       []fileStep `yaml:"steps"`
}

// LoadDir reads every *.yaml and *.yml file in dir, resolves each step's handler
// name against registry, and returns the resulting pipeline.Definitions
// sorted by file name for deterministic registration order.
func LoadDir(dir string, registry HandlerRegistry) ([]pipeline.Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pipeerrors.NewValidationError("pipelineDir", fmt.Sprintf("cannot read directory %q", dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".yaml" || filepath.Ext(entry.Name()) == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]pipeline.Definition, 0, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(dir, name), registry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFile parses one pipeline definition file and resolves its step
// handlers against registry.
func LoadFile(path string, registry HandlerRegistry) (pipeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Definition{}, pipeerrors.NewValidationError(path, "cannot read pipeline file", err)
	}

	var fp filePipeline
	if err := yaml.Unmarshal(data, &fp); err != nil {
		return pipeline.Definition{}, pipeerrors.NewValidationError(path, "malformed pipeline YAML", err)
	}

	def := pipeline.Definition{
		Name:        fp.Name,
		Description: fp.Description,
		Schedule:    fp.Schedule,
		Steps:       make([]pipeline.StepDefinition, 0, len(fp.Steps)),
	}
	for _, fs := range fp.Steps {
		handler, ok := registry.Lookup(fs.Handler)
		if !ok {
			return pipeline.Definition{}, pipeerrors.NewValidationError(
				fmt.Sprintf("%s: step %q", path, fs.Name),
				fmt.Sprintf("handler %q is not registered", fs.Handler), nil)
		}
		var timeout time.Duration
		if fs.TimeoutMs > 0 {
			timeout = time.Duration(fs.TimeoutMs) * time.Millisecond
		}
		def.Steps = append(def.Steps, pipeline.StepDefinition{
			Name:    fs.Name,
			Handler: handler,
			Config: pipeline.StepConfig{
				MaxRetries: fs.MaxRetries,
				Timeout:    timeout,
				DependsOn:  fs.DependsOn,
			},
		})
	}

	if err := def.Validate(); err != nil {
		return pipeline.Definition{}, err
	}
	return def, nil
}
