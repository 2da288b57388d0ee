// Package worker implements the Worker Loop: the
// process-wide poll/claim/drive cycle that turns pending runs into
// terminal success/failure outcomes, with graceful shutdown and metrics
// recording.
package worker

import (
	"context"
	"time"

	"github.com/flowforge/pipeline/internal/claim"
	"github.com/flowforge/pipeline/internal/logger"
	"github.com/flowforge/pipeline/internal/metrics"
	"github.com/flowforge/pipeline/internal/registry"
	"github.com/flowforge/pipeline/internal/runexec"
	"github.com/flowforge/pipeline/internal/storage"
)

// Claimer is the subset of claim.Claimer (or its circuit-breaker
// decorator, internal/resilience.BreakerClaimer) the loop depends on.
type Claimer interface {
	ClaimPending(ctx context.Context) (*claim.Claimed, error)
}

// Loop is the Worker Loop's runtime state.
type Loop struct {
	Claimer      Claimer
	Registry     *registry.Registry
	RunExecutor  *runexec.Executor
	Runs         storage.RunStore
	Metrics      metrics.Collector
	Log          *logger.Logger
	PollInterval time.Duration
}

// New constructs a Loop. A zero PollInterval defaults to 5 seconds.
func New(claimer Claimer, reg *registry.Registry, runExec *runexec.Executor, runs storage.RunStore, collector metrics.Collector, log *logger.Logger, pollInterval time.Duration) *Loop {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &Loop{
		Claimer:      claimer,
		Registry:     reg,
		RunExecutor:  runExec,
		Runs:         runs,
		Metrics:      collector,
		Log:          log,
		PollInterval: pollInterval,
	}
}

// Run drives the poll/claim/drive cycle until ctx is cancelled. It returns
// nil on a clean shutdown.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		advanced, err := l.tick(ctx)
		if err != nil {
			l.logError(err, "worker tick failed")
		}
		if advanced {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.PollInterval):
		}
	}
}

// tick performs one poll/claim/drive iteration. It reports whether a run
// was claimed (in which case the loop should not sleep before the next
// iteration) and any error encountered outside the drive call itself.
func (l *Loop) tick(ctx context.Context) (bool, error) {
	claimed, err := l.Claimer.ClaimPending(ctx)
	if err != nil {
		return false, err
	}
	if claimed == nil {
		return false, nil
	}

	def, err := l.Registry.Get(claimed.Pipeline.Name)
	if err != nil {
		l.logWarn("pipeline not registered, skipping run", map[string]any{
			"runId": claimed.Run.ID, "pipeline": claimed.Pipeline.Name,
		})
		return true, nil
	}

	start := time.Now()
	_, driveErr := l.RunExecutor.DriveExistingRun(ctx, claimed.Run.ID, claimed.Pipeline.ID, def, nil)
	duration := time.Since(start)

	finishedAt := time.Now().UTC()
	outcome := "success"
	status := storage.RunSuccess
	if driveErr != nil {
		outcome = "failed"
		status = storage.RunFailed
	}
	if err := l.Runs.UpdateStatus(ctx, claimed.Run.ID, status, &finishedAt); err != nil {
		return true, err
	}

	l.Metrics.RecordRunCompletion(claimed.Pipeline.Name, outcome, duration)
	return true, nil
}

func (l *Loop) logError(err error, msg string) {
	if l.Log != nil {
		l.Log.Error(err, msg)
	}
}

func (l *Loop) logWarn(msg string, fields map[string]any) {
	if l.Log != nil {
		l.Log.WithFields(fields).Warn(msg)
	}
}
