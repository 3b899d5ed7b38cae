package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.hackfix.me/dbmig/db/types"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

// DialectFor returns the SQL dialect for the named driver. Common aliases of
// the driver names are accepted.
func DialectFor(driver string) (types.Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pg":
		return postgresDialect{}, nil
	case "mysql", "mariadb":
		return mysqlDialect{}, nil
	default:
		return nil, types.InvalidInputError{
			Msg: fmt.Sprintf("unsupported database driver '%s'", driver),
		}
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return driverSQLite }
func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) TableExists(ctx context.Context, q types.Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed looking up table '%s': %w", table, err)
	}

	return n > 0, nil
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return driverPostgres }

// Rebind replaces each '?' placeholder with its positional $N equivalent.
// Question marks inside single-quoted literals are left untouched.
func (postgresDialect) Rebind(query string) string {
	var (
		sb      strings.Builder
		n       int
		inQuote bool
	)
	sb.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

// foldIdent returns the name PostgreSQL stores for an unquoted identifier.
func (postgresDialect) foldIdent(name string) string {
	return strings.ToLower(name)
}

func (d postgresDialect) TableExists(ctx context.Context, q types.Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?`), d.foldIdent(table)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed looking up table '%s': %w", table, err)
	}

	return n > 0, nil
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string               { return driverMySQL }
func (mysqlDialect) Rebind(query string) string { return query }

func (mysqlDialect) TableExists(ctx context.Context, q types.Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed looking up table '%s': %w", table, err)
	}

	return n > 0, nil
}
