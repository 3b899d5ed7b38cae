package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	aerrors "go.hackfix.me/dbmig/app/errors"
	"go.hackfix.me/dbmig/db/types"
)

// Runner applies and reverts single migration units, keeping the history in
// sync with their outcome.
type Runner struct {
	q           types.Querier
	catalog     Catalog
	history     *History
	out         io.Writer
	logger      *slog.Logger
	timeNow     func() time.Time
	unitTimeout time.Duration
}

// Apply runs the Up step of the unit with the given version, and records it in
// the history if it succeeds. The base version is ignored.
func (r *Runner) Apply(ctx context.Context, version string) error {
	return r.run(ctx, version, DirectionUp)
}

// Revert runs the Down step of the unit with the given version, and removes it
// from the history if it succeeds. The base version is ignored.
func (r *Runner) Revert(ctx context.Context, version string) error {
	return r.run(ctx, version, DirectionDown)
}

func (r *Runner) run(ctx context.Context, version string, dir Direction) error {
	if version == BaseVersion {
		return nil
	}

	verb, done, failed := "applying", "applied", "apply"
	if dir == DirectionDown {
		verb, done, failed = "reverting", "reverted", "revert"
	}

	// The table must exist before a transaction is started, since some
	// engines commit implicitly on DDL.
	if err := r.history.EnsureInitialized(ctx); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "*** %s %s\n", verb, version)
	start := time.Now()

	err := r.execute(ctx, version, dir)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(r.out, "*** failed to %s %s (time: %.3fs)\n\n", failed, version, elapsed.Seconds())
		r.logger.Error(fmt.Sprintf("failed to %s migration", failed),
			"version", version, "duration", elapsed, "error", err)
		return aerrors.With(err, "version", version)
	}

	fmt.Fprintf(r.out, "*** %s %s (time: %.3fs)\n\n", done, version, elapsed.Seconds())
	r.logger.Debug(fmt.Sprintf("%s migration", done), "version", version, "duration", elapsed)

	return nil
}

// execute loads the unit and runs it, together with the history update, in a
// single transaction if the executor supports it.
func (r *Runner) execute(ctx context.Context, version string, dir Direction) (rerr error) {
	unit, err := r.catalog.Load(ctx, version)
	if err != nil {
		return unitErr(err)
	}

	var (
		q    = r.q
		hist = r.history
		tx   *sql.Tx
	)
	if txb, ok := r.q.(types.TxBeginner); ok {
		tx, err = txb.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed beginning transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if rerr != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					r.logger.Warn("failed rolling back transaction", "version", version, "error", rbErr)
				}
			}
		}()
		q = tx
		hist = r.history.in(tx)
	}

	// The timeout bounds the unit only, never the transaction.
	unitCtx := ctx
	if r.unitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, r.unitTimeout)
		defer cancel()
	}

	if dir == DirectionUp {
		if err = unit.Up(unitCtx, q); err != nil {
			return unitErr(err)
		}
		if err = hist.Record(ctx, version, r.timeNow()); err != nil {
			return err
		}
	} else {
		if err = unit.Down(unitCtx, q); err != nil {
			return unitErr(err)
		}
		if err = hist.Remove(ctx, version); err != nil {
			return err
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed committing transaction: %w", err)
		}
	}

	return nil
}

// unitErr marks err as a failure of the unit itself, as opposed to a failure
// to update the history.
func unitErr(err error) error {
	if errors.Is(err, ErrUnitFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnitFailed, err)
}
