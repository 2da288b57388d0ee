package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

type runStore struct {
	db *Store
}

const runColumns = `id, pipeline_id, status, started_at, finished_at, triggered_by, metadata`

func scanRun(row pgx.Row) (*storage.Run, error) {
	var r storage.Run
	var triggeredBy *string
	var metadata []byte
	if err := row.Scan(&r.ID, &r.PipelineID, &r.Status, &r.StartedAt, &r.FinishedAt, &triggeredBy, &metadata); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.TriggeredBy = triggeredBy
	r.Metadata = metadata
	return &r, nil
}

func (s *runStore) Create(ctx context.Context, run storage.Run) (*storage.Run, error) {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.Status == "" {
		run.Status = storage.RunPending
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	row := s.db.querier(ctx).QueryRow(ctx,
		`INSERT INTO runs (id, pipeline_id, status, started_at, finished_at, triggered_by, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+runColumns,
		run.ID, run.PipelineID, run.Status, run.StartedAt, nullableTime(run.FinishedAt),
		nullableString(run.TriggeredBy), jsonOrEmpty(run.Metadata))
	created, err := scanRun(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("create run", err)
	}
	return created, nil
}

func (s *runStore) FindByID(ctx context.Context, id string, includeSteps bool) (*storage.RunDetail, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	row := s.db.querier(ctx).QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, rid)
	run, err := scanRun(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find run by id", err)
	}
	if run == nil {
		return nil, pipeerrors.NewNotFoundError("run", id)
	}

	detail := &storage.RunDetail{Run: *run}
	pl, err := (&pipelineStore{db: s.db}).FindByID(ctx, run.PipelineID)
	if err != nil {
		return nil, err
	}
	detail.Pipeline = pl
	if includeSteps {
		steps, err := (&stepStore{db: s.db}).ListForRun(ctx, id)
		if err != nil {
			return nil, err
		}
		detail.Steps = steps
	}
	return detail, nil
}

func (s *runStore) UpdateStatus(ctx context.Context, id string, status storage.RunStatus, finishedAt *time.Time) error {
	rid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.db.querier(ctx).Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2 WHERE id = $3`,
		status, nullableTime(finishedAt), rid)
	if err != nil {
		return pipeerrors.NewStorageError("update run status", err)
	}
	return nil
}

// MarkClaimed transitions a run to RunRunning and overwrites startedAt with
// the claim time.
func (s *runStore) MarkClaimed(ctx context.Context, id string, startedAt time.Time) error {
	rid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.db.querier(ctx).Exec(ctx,
		`UPDATE runs SET status = $1, started_at = $2 WHERE id = $3`,
		storage.RunRunning, startedAt, rid)
	if err != nil {
		return pipeerrors.NewStorageError("mark run claimed", err)
	}
	return nil
}

// FindFirstPendingForUpdate implements the Run Claimer's atomic FIFO claim:
// oldest pending run first, row-locked for the transaction's lifetime, and
// SKIP LOCKED so concurrent workers never block on each other's claims.
// Must be called from within Transactor.WithTransaction.
func (s *runStore) FindFirstPendingForUpdate(ctx context.Context) (*storage.Run, error) {
	row := s.db.querier(ctx).QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE status = $1
		 ORDER BY started_at ASC
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`, storage.RunPending)
	run, err := scanRun(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("claim pending run", err)
	}
	return run, nil
}

// FindStuckRunning returns runs still marked running with startedAt before
// olderThan, the Recovery Orchestrator's candidate set for
// detectInterrupted.
func (s *runStore) FindStuckRunning(ctx context.Context, olderThan time.Time) ([]storage.Run, error) {
	rows, err := s.db.querier(ctx).Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = $1 AND started_at < $2 ORDER BY started_at ASC`,
		storage.RunRunning, olderThan)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find stuck running runs", err)
	}
	defer rows.Close()

	var result []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, pipeerrors.NewStorageError("scan stuck running run", err)
		}
		result = append(result, *run)
	}
	return result, rows.Err()
}

func (s *runStore) FindRecentCompleted(ctx context.Context, filter storage.RunFilter, limit int) ([]storage.Run, error) {
	query := `SELECT r.id, r.pipeline_id, r.status, r.started_at, r.finished_at, r.triggered_by, r.metadata
	          FROM runs r JOIN pipelines p ON r.pipeline_id = p.id
	          WHERE r.status IN ($1, $2)`
	args := []interface{}{storage.RunSuccess, storage.RunFailed}
	argN := 3
	if filter.PipelineName != "" {
		query += fmt.Sprintf(" AND p.name = $%d", argN)
		args = append(args, filter.PipelineName)
		argN++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND r.status = $%d", argN)
		args = append(args, filter.Status)
		argN++
	}
	query += fmt.Sprintf(" ORDER BY r.finished_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := s.db.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find recent completed runs", err)
	}
	defer rows.Close()

	var result []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, pipeerrors.NewStorageError("scan recent completed run", err)
		}
		result = append(result, *run)
	}
	return result, rows.Err()
}
