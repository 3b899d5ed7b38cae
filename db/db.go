package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"go.hackfix.me/dbmig/db/types"
)

// DB wraps sql.DB with the dialect of the database it's connected to.
type DB struct {
	*sql.DB
	dialect types.Dialect
}

var (
	_ types.Querier    = (*DB)(nil)
	_ types.TxBeginner = (*DB)(nil)
)

// Open creates a new database handle for the given driver and data source
// name. The connection itself is established lazily on first use, so opening a
// database that isn't needed by a command is cheap.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	if dsn == "" {
		return nil, fmt.Errorf("no data source name provided for the %s driver", dialect.Name())
	}

	sqlDB, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening %s database: %w", dialect.Name(), err)
	}

	// The engine runs units one at a time on a single session.
	sqlDB.SetMaxOpenConns(1)

	if dialect.Name() == driverSQLite &&
		(strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:")) {
		// Keep the in-memory database alive between statements.
		// See https://github.com/mattn/go-sqlite3#faq
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(time.Duration(math.Inf(1)))
	}

	if err = ctx.Err(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// Dialect returns the SQL dialect of the database.
func (d *DB) Dialect() types.Dialect {
	return d.dialect
}
