// Package postgres implements the repository interfaces over pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the repositories call.
// pgxmock.PgxPoolIface satisfies it too, which is how the repository
// tests run without a database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// DB holds the live pool behind the PgxPool seam.
type DB struct{ Pool PgxPool }

// New opens a pool against the DSN. Connectivity is verified lazily on
// first use, not here.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close releases all pooled connections.
func (db *DB) Close() { db.Pool.Close() }

// isUniqueViolation matches unique_violation (23505), which the
// repositories translate to errs.ErrAlreadyExists.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
