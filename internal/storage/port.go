package storage

import (
	"context"
	"time"
)

// PipelineStore persists pipeline identity records. Pipelines are created
// lazily the first time a definition with a given name is run.
type PipelineStore interface {
	FindByName(ctx context.Context, name string) (*Pipeline, error)
	FindByID(ctx context.Context, id string) (*Pipeline, error)
	// CreateIfAbsent inserts a pipeline row for name if one does not already
	// exist and returns the (possibly pre-existing) record.
	CreateIfAbsent(ctx context.Context, p Pipeline) (*Pipeline, error)
}

// RunStore persists run records and supports the claim queries the Run
// Claimer and Recovery Orchestrator need.
type RunStore interface {
	Create(ctx context.Context, run Run) (*Run, error)
	FindByID(ctx context.Context, id string, includeSteps bool) (*RunDetail, error)
	UpdateStatus(ctx context.Context, id string, status RunStatus, finishedAt *time.Time) error

	// MarkClaimed transitions a run to RunRunning and overwrites startedAt
	// with the claim time, per the Run Claimer's invariant that the
	// original submission timestamp is intentionally discarded.
	MarkClaimed(ctx context.Context, id string, startedAt time.Time) error

	// FindFirstPendingForUpdate selects the oldest pending run and locks its
	// row for the duration of the enclosing transaction, skipping rows
	// already locked by a concurrent claimer. It must only be called inside
	// a transaction started by Transactor.WithTransaction.
	FindFirstPendingForUpdate(ctx context.Context) (*Run, error)

	// FindStuckRunning returns runs still in RunRunning status whose
	// startedAt predates olderThan — candidates for the Recovery
	// Orchestrator's detectInterrupted.
	FindStuckRunning(ctx context.Context, olderThan time.Time) ([]Run, error)

	FindRecentCompleted(ctx context.Context, filter RunFilter, limit int) ([]Run, error)
}

// StepStore persists per-attempt step records.
type StepStore interface {
	CreateForRun(ctx context.Context, step Step) (*Step, error)
	UpdateStatus(ctx context.Context, id string, update StepStatusUpdate) error
	UpdateResult(ctx context.Context, id string, result *string, stepErr *string) error
	ListForRun(ctx context.Context, runID string) ([]Step, error)
	FindByRunAndName(ctx context.Context, runID, name string) (*Step, error)
}

// Transactor brackets a function in a single serializable database
// transaction. fn receives a context carrying the transaction-scoped
// stores; implementations derive RunStore/StepStore/PipelineStore bound to
// the same underlying transaction from it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles the three entity stores plus the transactor, the handle
// the rest of the module depends on.
type Stores struct {
	Pipelines PipelineStore
	Runs      RunStore
	Steps     StepStore
	Tx        Transactor
}
