package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	aerrors "go.hackfix.me/dbmig/app/errors"
	"go.hackfix.me/dbmig/db/types"
)

// Migrator implements the migration operations on top of a catalog of units
// and the history table of a database.
type Migrator struct {
	q        types.Querier
	catalog  Catalog
	history  *History
	resolver *Resolver
	runner   *Runner

	confirmer                Confirmer
	out                      io.Writer
	logger                   *slog.Logger
	timeNow                  func() time.Time
	loc                      *time.Location
	table                    string
	template                 string
	unitTimeout              time.Duration
	reapplyAfterFailedRevert bool
}

// New returns a new Migrator that runs units from catalog against q.
// If q is nil, only Create is available, and all other operations return
// ErrNoDatabase.
func New(q types.Querier, dialect types.Dialect, catalog Catalog, opts ...Option) (*Migrator, error) {
	if q != nil && dialect == nil {
		return nil, errors.New("database dialect is required")
	}
	if catalog == nil {
		return nil, errors.New("migration catalog is required")
	}

	m := &Migrator{q: q, catalog: catalog}

	opts = append(DefaultOptions(), opts...)
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if q == nil {
		return m, nil
	}

	var err error
	m.history, err = NewHistory(q, dialect, m.table, m.timeNow, m.logger)
	if err != nil {
		return nil, err
	}
	m.resolver = NewResolver(catalog, m.history, m.loc, m.logger)
	m.runner = &Runner{
		q:           q,
		catalog:     catalog,
		history:     m.history,
		out:         m.out,
		logger:      m.logger,
		timeNow:     m.timeNow,
		unitTimeout: m.unitTimeout,
	}

	return m, nil
}

// Up applies the first step pending units, or all of them if step is 0.
func (m *Migrator) Up(ctx context.Context, step int) error {
	if m.history == nil {
		return ErrNoDatabase
	}
	versions, total, err := m.resolver.Pending(ctx, step)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		m.printf("No new migration found. Your system is up-to-date.\n")
		return nil
	}

	return m.up(ctx, versions, total)
}

// Down reverts the step most recently applied units.
func (m *Migrator) Down(ctx context.Context, step int) error {
	if m.history == nil {
		return ErrNoDatabase
	}
	versions, err := m.resolver.Applied(ctx, step)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		m.printf("No migration has been done before.\n")
		return nil
	}

	return m.down(ctx, versions)
}

// Redo reverts the step most recently applied units, and then applies them
// again, oldest first.
func (m *Migrator) Redo(ctx context.Context, step int) error {
	if m.history == nil {
		return ErrNoDatabase
	}
	versions, err := m.resolver.Applied(ctx, step)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		m.printf("No migration has been done before.\n")
		return nil
	}

	n := len(versions)
	m.printf("Total %d %s to be redone:\n", n, plural(n))
	m.printList(versions)

	if ok, err := m.confirm(fmt.Sprintf("Redo the above %s?", plural(n))); !ok || err != nil {
		return err
	}

	for i, v := range versions {
		if err = m.runner.Revert(ctx, v); err != nil {
			if m.reapplyAfterFailedRevert && i > 0 {
				m.logger.Warn("applying again the migrations reverted before the failure",
					"version", v, "count", i)
				if rerr := m.applyAll(ctx, reversed(versions[:i])); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			m.printf("\nMigration failed. All later migrations are canceled.\n")
			return err
		}
	}

	if err = m.applyAll(ctx, reversed(versions)); err != nil {
		m.printf("\nMigration failed. All later migrations are canceled.\n")
		return err
	}

	m.printf("\nMigration redone successfully.\n")

	return nil
}

// To migrates up or down to the given target. See Resolver.Resolve for the
// supported target formats.
func (m *Migrator) To(ctx context.Context, target string) error {
	plan, err := m.resolve(ctx, target)
	if err != nil {
		return err
	}

	switch plan.Direction {
	case DirectionUp:
		_, total, err := m.resolver.Pending(ctx, 0)
		if err != nil {
			return err
		}
		return m.up(ctx, plan.Versions, total)
	case DirectionDown:
		return m.down(ctx, plan.Versions)
	default:
		m.printf("Already at '%s'. Nothing needs to be done.\n", target)
		return nil
	}
}

// Mark changes the history as if the database was migrated up or down to the
// given target, without running any unit.
func (m *Migrator) Mark(ctx context.Context, target string) error {
	plan, err := m.resolve(ctx, target)
	if err != nil {
		return err
	}

	if plan.Direction == DirectionNone {
		m.printf("Already at '%s'. Nothing needs to be done.\n", target)
		return nil
	}

	if ok, err := m.confirm(fmt.Sprintf("Set migration history at %s?", target)); !ok || err != nil {
		return err
	}

	err = m.inTx(ctx, func(h *History) error {
		if plan.Direction == DirectionDown {
			for _, v := range plan.Versions {
				if err := h.Remove(ctx, v); err != nil {
					return err
				}
			}
			return nil
		}

		applied, err := h.Versions(ctx)
		if err != nil {
			return err
		}
		now := m.timeNow()
		for _, v := range plan.Versions {
			if slices.Contains(applied, v) {
				continue
			}
			if err := h.Record(ctx, v, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return aerrors.With(err, "target", target)
	}

	m.logger.Info("migration history changed without running migrations",
		"target", target, "direction", plan.Direction.String(), "count", len(plan.Versions))
	m.printf("The migration history is set at %s.\nNo actual migration was performed.\n", target)

	return nil
}

// History returns up to limit of the most recently applied units, newest
// first. A negative limit returns all of them. The base version is listed
// last, as the oldest entry.
func (m *Migrator) History(ctx context.Context, limit int) ([]Record, error) {
	if m.history == nil {
		return nil, ErrNoDatabase
	}

	//nolint:wrapcheck // Errors are annotated by the history store.
	return m.history.Recent(ctx, limit)
}

// Pending returns up to limit versions that haven't been applied yet, in the
// order they would be applied, and the total number of pending versions. A
// limit lower than 1 returns all of them.
func (m *Migrator) Pending(ctx context.Context, limit int) ([]string, int, error) {
	if m.history == nil {
		return nil, 0, ErrNoDatabase
	}
	return m.resolver.Pending(ctx, max(limit, 0))
}

// Create adds a new unit named name to the catalog, rendered from the
// configured template. It returns the version of the new unit, or an empty
// string if the operator didn't confirm the creation.
func (m *Migrator) Create(ctx context.Context, name string) (string, error) {
	if !unitNameOK.MatchString(name) {
		return "", aerrors.With(ErrInvalidName, "name", name)
	}

	creator, ok := m.catalog.(Creator)
	if !ok {
		return "", ErrCatalogReadOnly
	}

	version := fmt.Sprintf("m%s_%s", m.timeNow().UTC().Format("060102_150405"), name)
	content, err := renderTemplate(m.template, TemplateData{Version: version, Name: name})
	if err != nil {
		return "", err
	}

	loc := creator.Location(version)
	if ok, err = m.confirm(fmt.Sprintf("Create new migration '%s'?", loc)); !ok || err != nil {
		return "", err
	}

	if loc, err = creator.Create(ctx, version, content); err != nil {
		return "", err
	}

	m.logger.Info("created migration", "version", version, "path", loc)
	m.printf("New migration created successfully.\n")

	return version, nil
}

// Location returns the time zone datetime targets are interpreted in.
func (m *Migrator) Location() *time.Location {
	return m.loc
}

func (m *Migrator) resolve(ctx context.Context, target string) (*Plan, error) {
	if m.history == nil {
		return nil, ErrNoDatabase
	}
	plan, err := m.resolver.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if plan.Resolved != nil {
		m.printf("Found version %s applied at %s, it is before %s.\n",
			plan.Resolved.Version,
			plan.Resolved.AppliedAt.In(m.loc).Format(time.DateTime),
			target)
	}

	return plan, nil
}

func (m *Migrator) up(ctx context.Context, versions []string, total int) error {
	n := len(versions)
	if n == total {
		m.printf("Total %d new %s to be applied:\n", n, plural(n))
	} else {
		m.printf("Total %d out of %d new %s to be applied:\n", n, total, plural(total))
	}
	m.printList(versions)

	if ok, err := m.confirm(fmt.Sprintf("Apply the above %s?", plural(n))); !ok || err != nil {
		return err
	}

	if err := m.applyAll(ctx, versions); err != nil {
		m.printf("\nMigration failed. All later migrations are canceled.\n")
		return err
	}

	m.printf("\nMigrated up successfully.\n")

	return nil
}

func (m *Migrator) down(ctx context.Context, versions []string) error {
	n := len(versions)
	m.printf("Total %d %s to be reverted:\n", n, plural(n))
	m.printList(versions)

	if ok, err := m.confirm(fmt.Sprintf("Revert the above %s?", plural(n))); !ok || err != nil {
		return err
	}

	for _, v := range versions {
		if err := m.runner.Revert(ctx, v); err != nil {
			m.printf("\nMigration failed. All later migrations are canceled.\n")
			return err
		}
	}

	m.printf("\nMigrated down successfully.\n")

	return nil
}

// applyAll applies versions in order, stopping at the first failure.
func (m *Migrator) applyAll(ctx context.Context, versions []string) error {
	for _, v := range versions {
		if err := m.runner.Apply(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn with a history store bound to a transaction, if the executor
// supports them.
func (m *Migrator) inTx(ctx context.Context, fn func(h *History) error) (rerr error) {
	if err := m.history.EnsureInitialized(ctx); err != nil {
		return err
	}

	txb, ok := m.q.(types.TxBeginner)
	if !ok {
		return fn(m.history)
	}

	tx, err := txb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed beginning transaction: %w", err)
	}
	defer func() {
		if rerr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Warn("failed rolling back transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(m.history.in(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}

	return nil
}

func (m *Migrator) confirm(msg string) (bool, error) {
	ok, err := m.confirmer.Confirm(msg)
	if err != nil {
		return false, fmt.Errorf("failed reading confirmation: %w", err)
	}
	if !ok {
		m.logger.Debug("operation not confirmed", "prompt", msg)
	}
	return ok, nil
}

func (m *Migrator) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *Migrator) printList(versions []string) {
	for _, v := range versions {
		m.printf("    %s\n", v)
	}
	m.printf("\n")
}

func plural(n int) string {
	if n == 1 {
		return "migration"
	}
	return "migrations"
}

func reversed(versions []string) []string {
	r := slices.Clone(versions)
	slices.Reverse(r)
	return r
}
