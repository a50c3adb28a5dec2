// ABOUTME: Data access layer on pgxpool. Point lookups are plain pgx queries;
// ABOUTME: list queries are built with squirrel. Not-found returns (nil, nil).
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/internal/perm"
)

// psql builds Postgres-placeholder queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the central data access object. It satisfies perm.Store so the
// resolution engine can be constructed directly on top of it.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time check: the engine's store contract is implemented here.
var _ perm.Store = (*Store)(nil)

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pgxpool for callers that need raw access
// (healthz ping, test setup).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// withTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
