package postgres

import (
	"context"
	"database/sql"

	"sanuda/internal/core/services"
)

// Executor is satisfied by both *sql.DB and *sql.Tx, letting every query
// run against the context-carried transaction when one is present.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := services.TxFromContext(ctx); ok {
		return tx
	}
	return db
}
