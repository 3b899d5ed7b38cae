package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.hackfix.me/dbmig/db/types"
)

// DefaultHistoryTable is the name of the history table unless configured
// otherwise.
const DefaultHistoryTable = "tbl_migration"

var tableNameRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Record is an entry of the migration history.
type Record struct {
	Version   string
	AppliedAt time.Time
}

// History stores the versions of applied migrations in a database table with
// the layout (version VARCHAR(180) PRIMARY KEY, apply_time INTEGER), where
// apply_time is in seconds since the UNIX epoch.
//
// The table is created, and seeded with BaseVersion, the first time any
// method is called.
type History struct {
	q           types.Querier
	dialect     types.Dialect
	table       string
	timeNow     func() time.Time
	logger      *slog.Logger
	initialized *bool
}

// NewHistory returns a history store for the given table. If table is empty,
// DefaultHistoryTable is used.
func NewHistory(
	q types.Querier, dialect types.Dialect, table string, timeNow func() time.Time, logger *slog.Logger,
) (*History, error) {
	if table == "" {
		table = DefaultHistoryTable
	}
	if !tableNameRx.MatchString(table) {
		return nil, types.InvalidInputError{
			Msg: fmt.Sprintf("invalid migration table name '%s'", table),
		}
	}
	if timeNow == nil {
		timeNow = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	initialized := false
	return &History{
		q: q, dialect: dialect, table: table, timeNow: timeNow,
		logger: logger, initialized: &initialized,
	}, nil
}

// Table returns the name of the history table.
func (h *History) Table() string {
	return h.table
}

// in returns a copy of the store that runs its queries on q, usually a
// transaction.
func (h *History) in(q types.Querier) *History {
	hc := *h
	hc.q = q
	return &hc
}

// EnsureInitialized creates the history table and inserts the base version,
// if the table doesn't exist yet.
func (h *History) EnsureInitialized(ctx context.Context) error {
	if *h.initialized {
		return nil
	}

	exists, err := h.dialect.TableExists(ctx, h.q, h.table)
	if err != nil {
		return err
	}
	if !exists {
		h.logger.Info("creating migration history table", "table", h.table)
		_, err = h.q.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (
			version VARCHAR(180) NOT NULL PRIMARY KEY,
			apply_time INTEGER
		)`, h.table))
		if err != nil {
			return fmt.Errorf("failed creating migration history table '%s': %w", h.table, err)
		}

		if err = h.insert(ctx, BaseVersion, h.timeNow()); err != nil {
			return err
		}
	}
	*h.initialized = true

	return nil
}

// Recent returns the most recent history records ordered by version in
// descending order. A negative limit returns all records, and a limit of 0
// returns none.
func (h *History) Recent(ctx context.Context, limit int) (records []Record, rerr error) {
	if err := h.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []Record{}, nil
	}

	query := fmt.Sprintf(`SELECT version, apply_time FROM %s ORDER BY version DESC`, h.table)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.q.QueryContext(ctx, h.dialect.Rebind(query), args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "migration history", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("failed closing migration history rows: %w", err)
		}
	}()

	records = make([]Record, 0)
	for rows.Next() {
		var (
			rec       Record
			applyTime sql.NullInt64
		)
		if err = rows.Scan(&rec.Version, &applyTime); err != nil {
			return nil, types.ScanError{ModelName: "migration history", Err: err}
		}
		rec.AppliedAt = time.Unix(applyTime.Int64, 0).UTC()
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over migration history rows: %w", err)
	}

	return records, nil
}

// Versions returns the versions of all history records, most recent first.
func (h *History) Versions(ctx context.Context) ([]string, error) {
	records, err := h.Recent(ctx, -1)
	if err != nil {
		return nil, err
	}

	versions := make([]string, len(records))
	for i, rec := range records {
		versions[i] = rec.Version
	}

	return versions, nil
}

// Record adds a version to the history. It returns ErrDuplicateVersion if the
// version is already recorded.
func (h *History) Record(ctx context.Context, version string, at time.Time) error {
	if err := h.EnsureInitialized(ctx); err != nil {
		return err
	}

	return h.insert(ctx, version, at)
}

func (h *History) insert(ctx context.Context, version string, at time.Time) error {
	_, err := h.q.ExecContext(ctx,
		h.dialect.Rebind(fmt.Sprintf(`INSERT INTO %s (version, apply_time) VALUES (?, ?)`, h.table)),
		version, at.Unix())
	if err != nil {
		err = types.Err("migration", fmt.Sprintf("version '%s'", version), err)
		var dupErr *types.DuplicateError
		if errors.As(err, &dupErr) {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
		}
		return fmt.Errorf("failed recording migration %s: %w", version, err)
	}

	return nil
}

// Remove deletes a version from the history. Removing a version that isn't
// recorded is not an error.
func (h *History) Remove(ctx context.Context, version string) error {
	if err := h.EnsureInitialized(ctx); err != nil {
		return err
	}

	_, err := h.q.ExecContext(ctx,
		h.dialect.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE version = ?`, h.table)), version)
	if err != nil {
		return fmt.Errorf("failed removing migration %s from history: %w", version, err)
	}

	return nil
}

// FindAppliedBefore returns the most recently applied record whose apply time
// is at or before t. The boolean is false if there's no such record.
func (h *History) FindAppliedBefore(ctx context.Context, t time.Time) (Record, bool, error) {
	if err := h.EnsureInitialized(ctx); err != nil {
		return Record{}, false, err
	}

	var (
		rec       Record
		applyTime sql.NullInt64
	)
	err := h.q.QueryRowContext(ctx,
		h.dialect.Rebind(fmt.Sprintf(`SELECT version, apply_time FROM %s
			WHERE apply_time <= ?
			ORDER BY apply_time DESC, version DESC
			LIMIT 1`, h.table)),
		t.Unix()).Scan(&rec.Version, &applyTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, types.LoadError{ModelName: "migration history", Err: err}
	}
	rec.AppliedAt = time.Unix(applyTime.Int64, 0).UTC()

	return rec, true, nil
}
