// Package recovery implements the Recovery Orchestrator: detection of runs
// interrupted by a crashed worker, reconstruction of their execution
// context from persisted step rows, and resumption through the Run
// Executor without replaying completed work.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/pipeline"
	"github.com/flowforge/pipeline/internal/registry"
	"github.com/flowforge/pipeline/internal/runexec"
	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// DefaultStuckThreshold is the default age past which a running run is
// considered interrupted.
const DefaultStuckThreshold = 10 * time.Minute

// Orchestrator detects and resumes interrupted runs.
type Orchestrator struct {
	Stores         storage.Stores
	Registry       *registry.Registry
	RunExecutor    *runexec.Executor
	Log            *logger.Logger
	StuckThreshold time.Duration
}

// New constructs an Orchestrator. A zero threshold defaults to
// DefaultStuckThreshold.
func New(stores storage.Stores, reg *registry.Registry, runExec *runexec.Executor, log *logger.Logger, stuckThreshold time.Duration) *Orchestrator {
	if stuckThreshold <= 0 {
		stuckThreshold = DefaultStuckThreshold
	}
	return &Orchestrator{Stores: stores, Registry: reg, RunExecutor: runExec, Log: log, StuckThreshold: stuckThreshold}
}

// Interrupted describes one run found to be stuck mid-execution.
type Interrupted struct {
	RunID             string
	PipelineID        string
	PipelineName      string
	StartedAt         time.Time
	LastStepUpdate    *time.Time
	CompletedSteps    []string
	FailedSteps       []string
	NextStepToExecute string
}

// DetectInterrupted returns every run whose status is still RunRunning and
// whose StartedAt predates the configured stuck threshold.
func (o *Orchestrator) DetectInterrupted(ctx context.Context) ([]Interrupted, error) {
	cutoff := time.Now().UTC().Add(-o.StuckThreshold)
	stuck, err := o.Stores.Runs.FindStuckRunning(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := make([]Interrupted, 0, len(stuck))
	for _, run := range stuck {
		pl, err := o.Stores.Pipelines.FindByID(ctx, run.PipelineID)
		if err != nil {
			return nil, err
		}
		pipelineName := ""
		if pl != nil {
			pipelineName = pl.Name
		}

		completed, failedSteps, lastUpdate, err := o.analyzeStepCompletion(ctx, run.ID)
		if err != nil {
			return nil, err
		}

		next := ""
		if def, ok := o.definitionFor(pipelineName); ok {
			next = nextStepToExecute(def, completed, failedSteps)
		}

		result = append(result, Interrupted{
			RunID:             run.ID,
			PipelineID:        run.PipelineID,
			PipelineName:      pipelineName,
			StartedAt:         run.StartedAt,
			LastStepUpdate:    lastUpdate,
			CompletedSteps:    completed,
			FailedSteps:       failedSteps,
			NextStepToExecute: next,
		})
	}
	return result, nil
}

// analyzeStepCompletion classifies persisted Step rows for runID into
// completed and failed name lists (in ListForRun's startedAt order, not
// declaration order), plus the most recent
// finishedAt among successful steps.
func (o *Orchestrator) analyzeStepCompletion(ctx context.Context, runID string) (completed, failedSteps []string, lastUpdate *time.Time, err error) {
	steps, err := o.Stores.Steps.ListForRun(ctx, runID)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, step := range steps {
		switch step.Status {
		case storage.StepSuccess:
			completed = append(completed, step.Name)
			if step.FinishedAt != nil && (lastUpdate == nil || step.FinishedAt.After(*lastUpdate)) {
				lastUpdate = step.FinishedAt
			}
		case storage.StepFailed:
			failedSteps = append(failedSteps, step.Name)
		}
	}
	return completed, failedSteps, lastUpdate, nil
}

func nextStepToExecute(def pipeline.Definition, completed, failedSteps []string) string {
	done := make(map[string]struct{}, len(completed)+len(failedSteps))
	for _, name := range completed {
		done[name] = struct{}{}
	}
	for _, name := range failedSteps {
		done[name] = struct{}{}
	}
	for _, name := range def.StepNames() {
		if _, ok := done[name]; !ok {
			return name
		}
	}
	return ""
}

// reconstructContext builds the seeded prevResults map for a run's
// completed steps, deserializing each Step row's persisted JSON result.
func (o *Orchestrator) reconstructContext(ctx context.Context, runID string) (map[string]pipeline.StepResult, error) {
	steps, err := o.Stores.Steps.ListForRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	seeded := make(map[string]pipeline.StepResult)
	for _, step := range steps {
		if step.Status != storage.StepSuccess {
			continue
		}
		var data any
		if step.Result != nil && *step.Result != "" {
			if err := json.Unmarshal([]byte(*step.Result), &data); err != nil {
				return nil, pipeerrors.NewValidationError("result", "failed to deserialize step result for "+step.Name, err)
			}
		}
		seeded[step.Name] = pipeline.Success(data)
	}
	return seeded, nil
}

func (o *Orchestrator) definitionFor(pipelineName string) (pipeline.Definition, bool) {
	if pipelineName == "" || o.Registry == nil {
		return pipeline.Definition{}, false
	}
	def, err := o.Registry.Get(pipelineName)
	if err != nil {
		return pipeline.Definition{}, false
	}
	return def, true
}

// ResumeResult is resumeRun's structured outcome (never thrown — a refusal
// is a normal, reportable result).
type ResumeResult struct {
	Success       bool
	Error         string
	StepsExecuted int
}

// ResumeRun attempts to finish an interrupted run without replaying
// completed work. It refuses (rather than throws) when the run cannot be
// safely resumed.
func (o *Orchestrator) ResumeRun(ctx context.Context, runID string) (ResumeResult, error) {
	detail, err := o.Stores.Runs.FindByID(ctx, runID, true)
	if err != nil {
		var notFound *pipeerrors.NotFoundError
		if errors.As(err, &notFound) {
			return ResumeResult{Success: false, Error: "run not found"}, nil
		}
		return ResumeResult{}, err
	}

	for _, step := range detail.Steps {
		if step.Status == storage.StepFailed {
			return ResumeResult{Success: false, Error: "has failed step(s)"}, nil
		}
	}

	pipelineName := ""
	if detail.Pipeline != nil {
		pipelineName = detail.Pipeline.Name
	}
	def, ok := o.definitionFor(pipelineName)
	if !ok {
		return ResumeResult{Success: false, Error: "not found in registry"}, nil
	}

	completed := make(map[string]struct{}, len(detail.Steps))
	for _, step := range detail.Steps {
		if step.Status == storage.StepSuccess {
			completed[step.Name] = struct{}{}
		}
	}
	allDone := true
	for _, name := range def.StepNames() {
		if _, ok := completed[name]; !ok {
			allDone = false
			break
		}
	}
	if allDone {
		if err := o.Stores.Runs.UpdateStatus(ctx, runID, storage.RunSuccess, timePtr(time.Now().UTC())); err != nil {
			return ResumeResult{}, err
		}
		return ResumeResult{Success: true, StepsExecuted: 0}, nil
	}

	seeded, err := o.reconstructContext(ctx, runID)
	if err != nil {
		return ResumeResult{}, err
	}

	before := len(seeded)
	results, driveErr := o.RunExecutor.DriveExistingRun(ctx, runID, detail.Run.PipelineID, def, seeded)
	executed := len(results) - before
	if executed < 0 {
		executed = 0
	}

	finishedAt := time.Now().UTC()
	if driveErr != nil {
		if err := o.Stores.Runs.UpdateStatus(ctx, runID, storage.RunFailed, &finishedAt); err != nil {
			return ResumeResult{}, err
		}
		return ResumeResult{Success: false, Error: driveErr.Error(), StepsExecuted: executed}, nil
	}

	if err := o.Stores.Runs.UpdateStatus(ctx, runID, storage.RunSuccess, &finishedAt); err != nil {
		return ResumeResult{}, err
	}
	return ResumeResult{Success: true, StepsExecuted: executed}, nil
}

// RecoverySummary aggregates one recoverInterruptedRuns pass.
type RecoverySummary struct {
	Detected  int
	Recovered int
	Failed    int
	Errors    []RunError
}

// RunError pairs a run id with the error encountered resuming it.
type RunError struct {
	RunID string
	Error string
}

// RecoverInterruptedRuns detects every interrupted run and attempts to
// resume each, never stopping early on an individual failure.
func (o *Orchestrator) RecoverInterruptedRuns(ctx context.Context) (RecoverySummary, error) {
	interrupted, err := o.DetectInterrupted(ctx)
	if err != nil {
		return RecoverySummary{}, err
	}

	summary := RecoverySummary{Detected: len(interrupted)}
	for _, run := range interrupted {
		result, err := o.ResumeRun(ctx, run.RunID)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RunError{RunID: run.RunID, Error: err.Error()})
			continue
		}
		if result.Success {
			summary.Recovered++
		} else {
			summary.Failed++
			summary.Errors = append(summary.Errors, RunError{RunID: run.RunID, Error: result.Error})
		}
	}
	return summary, nil
}

func timePtr(t time.Time) *time.Time { return &t }
