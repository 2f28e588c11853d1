package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Stores are
// bound to a Querier so the same code runs standalone or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions. Satisfied by *pgxpool.Pool and by pgxmock pools.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner runs a function inside a single transaction: every write in fn is
// visible after it returns nil, or none are.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// Runner is the pgx-backed TxRunner.
type Runner struct {
	pool Beginner
}

func NewRunner(pool Beginner) *Runner {
	return &Runner{pool: pool}
}

// InTx begins a transaction, runs fn bound to it, and commits. The deferred
// rollback is a no-op after commit, so every exit path releases the tx.
func (r *Runner) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
