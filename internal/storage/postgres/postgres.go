// Package postgres implements the Storage Port on top of
// github.com/jackc/pgx/v5, using a column-list-plus-Scan idiom and
// uuid.UUID-keyed rows. It talks to the database directly through pgx
// rather than through a generated query layer, since the query surface
// here is small enough not to warrant one.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowforge/pipeline/internal/storage"
	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the store
// types run unmodified whether or not they are inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type txKey struct{}

// Store bundles the pool-backed implementations behind storage.Stores.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool. The pool's lifecycle (including
// Close) remains the caller's responsibility.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Stores returns the storage.Stores bundle backed by this pool.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Pipelines: &pipelineStore{db: s},
		Runs:      &runStore{db: s},
		Steps:     &stepStore{db: s},
		Tx:        s,
	}
}

// querier returns the transaction bound to ctx if WithTransaction started
// one, otherwise the pool itself.
func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// WithTransaction runs fn inside a serializable transaction, so a Run
// Claimer's SELECT...FOR UPDATE SKIP LOCKED claim-and-update sequence
// commits or rolls back as a single atomic unit.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return pipeerrors.NewStorageError("begin transaction", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return pipeerrors.NewStorageError("rollback transaction", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return pipeerrors.NewStorageError("commit transaction", err)
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, pipeerrors.NewValidationError("id", "malformed identifier", err)
	}
	return parsed, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func jsonOrEmpty(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return []byte(raw)
}
