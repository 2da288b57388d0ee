package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

type stepStore struct {
	db *Store
}

const stepColumns = `id, run_id, name, status, started_at, finished_at, attempt_count, next_retry_at, result, error`

func scanStep(row pgx.Row) (*storage.Step, error) {
	var st storage.Step
	if err := row.Scan(&st.ID, &st.RunID, &st.Name, &st.Status, &st.StartedAt, &st.FinishedAt,
		&st.AttemptCount, &st.NextRetryAt, &st.Result, &st.Error); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan step: %w", err)
	}
	return &st, nil
}

func (s *stepStore) CreateForRun(ctx context.Context, step storage.Step) (*storage.Step, error) {
	if step.ID == "" {
		step.ID = newID()
	}
	if step.Status == "" {
		step.Status = storage.StepPending
	}
	row := s.db.querier(ctx).QueryRow(ctx,
		`INSERT INTO steps (id, run_id, name, status, started_at, finished_at, attempt_count, next_retry_at, result, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+stepColumns,
		step.ID, step.RunID, step.Name, step.Status, nullableTime(step.StartedAt), nullableTime(step.FinishedAt),
		step.AttemptCount, nullableTime(step.NextRetryAt), nullableString(step.Result), nullableString(step.Error))
	created, err := scanStep(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("create step", err)
	}
	return created, nil
}

func (s *stepStore) UpdateStatus(ctx context.Context, id string, update storage.StepStatusUpdate) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.db.querier(ctx).Exec(ctx,
		`UPDATE steps SET status = $1, started_at = $2, finished_at = $3, attempt_count = $4, next_retry_at = $5
		 WHERE id = $6`,
		update.Status, nullableTime(update.StartedAt), nullableTime(update.FinishedAt),
		update.AttemptCount, nullableTime(update.NextRetryAt), sid)
	if err != nil {
		return pipeerrors.NewStorageError("update step status", err)
	}
	return nil
}

func (s *stepStore) UpdateResult(ctx context.Context, id string, result *string, stepErr *string) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}
	_, err = s.db.querier(ctx).Exec(ctx,
		`UPDATE steps SET result = $1, error = $2 WHERE id = $3`,
		nullableString(result), nullableString(stepErr), sid)
	if err != nil {
		return pipeerrors.NewStorageError("update step result", err)
	}
	return nil
}

func (s *stepStore) ListForRun(ctx context.Context, runID string) ([]storage.Step, error) {
	rid, err := parseID(runID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.querier(ctx).Query(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE run_id = $1 ORDER BY started_at ASC NULLS LAST`, rid)
	if err != nil {
		return nil, pipeerrors.NewStorageError("list steps for run", err)
	}
	defer rows.Close()

	var result []storage.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, pipeerrors.NewStorageError("scan step", err)
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

func (s *stepStore) FindByRunAndName(ctx context.Context, runID, name string) (*storage.Step, error) {
	rid, err := parseID(runID)
	if err != nil {
		return nil, err
	}
	row := s.db.querier(ctx).QueryRow(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE run_id = $1 AND name = $2`, rid, name)
	st, err := scanStep(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find step by run and name", err)
	}
	return st, nil
}
