package data

import (
	"context"
	"database/sql"
)

// QueryExecutor runs a unit of database work against the current pool handle.
// The production implementation is the connection manager, which bounds the
// work with a timeout and classifies failures for background reconnection.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, op func(context.Context, *sql.DB) error) error
}

// DirectExecutor runs operations straight against a fixed pool handle with no
// timeout race or failure classification. Used by tests and one-shot tooling
// such as migrations.
type DirectExecutor struct {
	DB *sql.DB
}

// ExecuteQuery implements QueryExecutor.
func (e DirectExecutor) ExecuteQuery(ctx context.Context, op func(context.Context, *sql.DB) error) error {
	return op(ctx, e.DB)
}
