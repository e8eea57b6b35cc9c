// Package dbx holds the small database/sql helpers shared by repositories
// and services: the DBTX handle and the transaction runner.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is what a repository needs to run queries. *sql.DB and *sql.Tx both
// implement it, so one repository type serves both plain and transactional
// calls.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTxResult runs fn inside a transaction and returns its result. The
// transaction commits when fn returns nil and rolls back when fn fails or
// panics; a panic is re-raised after the rollback.
//
//	user, err := dbx.WithTxResult(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.User, error) {
//	    return repomanager.Users(tx).Create(ctx, u)
//	})
func WithTxResult[T any](ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) (T, error)) (result T, err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			var zero T
			result = zero
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			var zero T
			result, err = zero, fmt.Errorf("commit tx: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}
