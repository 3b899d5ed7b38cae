package types

import (
	"context"
	"database/sql"
)

// Querier exposes only methods for running SQL queries. Both *sql.DB and
// *sql.Tx implement it, so code written against it runs unchanged inside or
// outside of a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by executors that can start a transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Dialect abstracts the SQL differences between the supported database
// engines.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string
	// Rebind converts a query written with '?' placeholders into the
	// placeholder syntax of the dialect.
	Rebind(query string) string
	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, q Querier, table string) (bool, error)
}
