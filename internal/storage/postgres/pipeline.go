package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

type pipelineStore struct {
	db *Store
}

const pipelineColumns = `id, name, description, schedule`

func scanPipeline(row pgx.Row) (*storage.Pipeline, error) {
	var p storage.Pipeline
	var schedule *string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &schedule); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	p.Schedule = schedule
	return &p, nil
}

func (s *pipelineStore) FindByName(ctx context.Context, name string) (*storage.Pipeline, error) {
	row := s.db.querier(ctx).QueryRow(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE name = $1`, name)
	p, err := scanPipeline(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find pipeline by name", err)
	}
	return p, nil
}

func (s *pipelineStore) FindByID(ctx context.Context, id string) (*storage.Pipeline, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	row := s.db.querier(ctx).QueryRow(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1`, pid)
	p, err := scanPipeline(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("find pipeline by id", err)
	}
	return p, nil
}

// CreateIfAbsent inserts the pipeline row if missing. The ON CONFLICT clause
// makes the insert idempotent under concurrent first-runs of the same
// pipeline without requiring a preceding SELECT.
func (s *pipelineStore) CreateIfAbsent(ctx context.Context, p storage.Pipeline) (*storage.Pipeline, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	row := s.db.querier(ctx).QueryRow(ctx,
		`INSERT INTO pipelines (id, name, description, schedule)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET name = pipelines.name
		 RETURNING `+pipelineColumns,
		p.ID, p.Name, p.Description, p.Schedule)
	created, err := scanPipeline(row)
	if err != nil {
		return nil, pipeerrors.NewStorageError("create pipeline", err)
	}
	return created, nil
}
