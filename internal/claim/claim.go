// Package claim implements the Run Claimer: the atomic FIFO pop of the
// oldest pending run, composing Transactor, RunStore, and PipelineStore so
// the select-and-update sequence commits or rolls back as one unit. The
// row-locking semantics (FOR UPDATE SKIP LOCKED in the Postgres backend)
// live in internal/storage/postgres; this package only orchestrates the
// transaction boundary and overwrites startedAt at claim time.
package claim

import (
	"context"
	"time"

	"github.com/flowforge/pipeline/internal/storage"
)

// Claimer claims the oldest pending run for exclusive processing by one
// worker.
type Claimer struct {
	Stores storage.Stores
}

// New constructs a Claimer over the given store bundle.
func New(stores storage.Stores) *Claimer {
	return &Claimer{Stores: stores}
}

// Claimed is the run plus its resolved pipeline identity, handed back to
// the Worker Loop.
type Claimed struct {
	Run      storage.Run
	Pipeline storage.Pipeline
}

// ClaimPending returns the oldest pending run and its pipeline, or nil if
// none is available. At most one worker ever observes a given run as
// claimed, and claim order is FIFO across workers under normal load. The
// claimed run's StartedAt is overwritten with the claim time — the original
// submission timestamp is intentionally discarded.
func (c *Claimer) ClaimPending(ctx context.Context) (*Claimed, error) {
	var claimed *Claimed

	err := c.Stores.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		run, err := c.Stores.Runs.FindFirstPendingForUpdate(ctx)
		if err != nil {
			return err
		}
		if run == nil {
			return nil
		}

		now := time.Now().UTC()
		if err := c.Stores.Runs.MarkClaimed(ctx, run.ID, now); err != nil {
			return err
		}
		run.Status = storage.RunRunning
		run.StartedAt = now

		pl, err := c.Stores.Pipelines.FindByID(ctx, run.PipelineID)
		if err != nil {
			return err
		}
		if pl == nil {
			return nil
		}

		claimed = &Claimed{Run: *run, Pipeline: *pl}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
