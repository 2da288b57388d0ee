// Package runexec implements the Run Executor: the two entry points that
// create and drive a pipeline run, and the scheduling loop at their core,
// which launches steps continuously as their dependencies clear rather
// than in discrete execution levels, per the dependency graph exposed by
// internal/dag.
package runexec

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/pipeline/internal/dag"
	"github.com/flowforge/pipeline/internal/executor"
	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/pipeline"
	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// Executor drives whole-run execution: it creates new runs, or resumes
// existing ones, and owns the DAG scheduling loop shared by both paths.
type Executor struct {
	Stores storage.Stores
	Steps  *executor.Executor
	Log    *logger.Logger
}

// New constructs a run Executor.
func New(stores storage.Stores, steps *executor.Executor, log *logger.Logger) *Executor {
	return &Executor{Stores: stores, Steps: steps, Log: log}
}

// Result is the outcome of a run, whichever entry point produced it.
type Result struct {
	RunID        string
	Success      bool
	StepResults  map[string]pipeline.StepResult
	Err          error
	DurationMs   int64
	StepsRunThis int // steps that completed successfully during this call
}

// Execute creates a brand new run for def and drives it to completion.
func (e *Executor) Execute(ctx context.Context, def pipeline.Definition, triggeredBy *string) (Result, error) {
	start := time.Now()

	pl, err := e.Stores.Pipelines.CreateIfAbsent(ctx, storage.Pipeline{Name: def.Name, Description: def.Description})
	if err != nil {
		return Result{}, err
	}

	run, err := e.Stores.Runs.Create(ctx, storage.Run{
		PipelineID:  pl.ID,
		Status:      storage.RunPending,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		return Result{}, err
	}

	if err := e.Stores.Runs.UpdateStatus(ctx, run.ID, storage.RunRunning, nil); err != nil {
		return Result{}, err
	}

	state := executor.NewRunState(nil)
	driveErr := e.drive(ctx, run.ID, pl.ID, def, state)

	finishedAt := time.Now().UTC()
	result := Result{
		RunID:       run.ID,
		StepResults: state.Snapshot(),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	result.StepsRunThis = len(result.StepResults)

	if driveErr != nil {
		if err := e.Stores.Runs.UpdateStatus(ctx, run.ID, storage.RunFailed, &finishedAt); err != nil {
			return Result{}, err
		}
		result.Err = driveErr
		return result, nil
	}

	if err := e.Stores.Runs.UpdateStatus(ctx, run.ID, storage.RunSuccess, &finishedAt); err != nil {
		return Result{}, err
	}
	result.Success = true
	return result, nil
}

// DriveExistingRun is the worker's and the recovery orchestrator's entry
// point: it assumes runID is already storage.RunRunning and drives it,
// seeded with any already-completed results. The caller is responsible for
// setting the run's terminal status.
func (e *Executor) DriveExistingRun(ctx context.Context, runID, pipelineID string, def pipeline.Definition, initialResults map[string]pipeline.StepResult) (map[string]pipeline.StepResult, error) {
	state := executor.NewRunState(initialResults)
	err := e.drive(ctx, runID, pipelineID, def, state)
	return state.Snapshot(), err
}

// drive is `_drive`: the dependency-driven concurrent scheduling loop.
// completed/failed track step names; inFlight tracks running launches via a
// channel each goroutine reports its outcome on. firstError, once set, stops
// new launches but lets already-running siblings finish untouched — their
// persisted state must stay truthful.
func (e *Executor) drive(ctx context.Context, runID, pipelineID string, def pipeline.Definition, state *executor.RunState) error {
	graph, err := dag.Build(def.Steps)
	if err != nil {
		return err
	}

	total := len(graph.Steps())
	completed := make(map[string]struct{}, total)
	failed := make(map[string]struct{}, total)
	for name := range state.Names() {
		completed[name] = struct{}{}
	}
	inFlight := make(map[string]struct{}, total)

	type outcome struct {
		name string
		err  error
	}
	results := make(chan outcome)
	var wg sync.WaitGroup
	var firstError error

	launch := func(name string) {
		step, getErr := def.GetStep(name)
		if getErr != nil {
			results <- outcome{name: name, err: getErr}
			return
		}
		inFlight[name] = struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Steps.ExecuteStep(ctx, runID, pipelineID, *step, state)
			results <- outcome{name: name, err: err}
		}()
	}

	for {
		if firstError == nil {
			for _, name := range graph.Steps() {
				if _, done := completed[name]; done {
					continue
				}
				if _, bad := failed[name]; bad {
					continue
				}
				if _, running := inFlight[name]; running {
					continue
				}
				if !graph.Satisfied(name, completed) {
					continue
				}
				launch(name)
			}
		}

		if len(inFlight) == 0 {
			// Once a failure has been captured, steps downstream of it are
			// never launched and so never reach completed or failed — that
			// is expected, not stalled. Only an unfinished, failure-free
			// DAG draining to zero in-flight tasks is the defensive case.
			if firstError != nil {
				break
			}
			if len(completed)+len(failed) < total {
				return &pipeerrors.DagStalledError{RunID: runID}
			}
			break
		}

		o := <-results
		delete(inFlight, o.name)
		if o.err != nil {
			failed[o.name] = struct{}{}
			if firstError == nil {
				firstError = o.err
			}
		} else {
			completed[o.name] = struct{}{}
		}
	}

	wg.Wait()
	return firstError
}
