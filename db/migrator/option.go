package migrator

import (
	"errors"
	"io"
	"log/slog"
	"time"
)

// Option is a function that allows configuring the Migrator.
type Option func(*Migrator) error

// WithConfirmer sets the Confirmer asked before changing the database or the
// catalog.
func WithConfirmer(c Confirmer) Option {
	return func(m *Migrator) error {
		if c == nil {
			return errors.New("confirmer is required")
		}
		m.confirmer = c
		return nil
	}
}

// WithHistoryTable sets the name of the migration history table.
func WithHistoryTable(table string) Option {
	return func(m *Migrator) error {
		m.table = table
		return nil
	}
}

// WithLocation sets the time zone datetime targets are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(m *Migrator) error {
		if loc == nil {
			loc = time.Local
		}
		m.loc = loc
		return nil
	}
}

// WithLogger sets the logger used by the Migrator.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) error {
		m.logger = logger.With("component", "migrator")
		return nil
	}
}

// WithOutput sets the writer progress messages are written to.
func WithOutput(w io.Writer) Option {
	return func(m *Migrator) error {
		m.out = w
		return nil
	}
}

// WithReapplyAfterFailedRevert controls what Redo does when reverting one of
// its units fails. If enabled, the units reverted before the failure are
// applied again before the error is returned. Otherwise, the redo stops
// immediately.
func WithReapplyAfterFailedRevert(enabled bool) Option {
	return func(m *Migrator) error {
		m.reapplyAfterFailedRevert = enabled
		return nil
	}
}

// WithTemplate sets the template new units are created from.
func WithTemplate(text string) Option {
	return func(m *Migrator) error {
		if text == "" {
			text = DefaultTemplate
		}
		m.template = text
		return nil
	}
}

// WithTimeNow sets the function used to retrieve the current time.
func WithTimeNow(timeNow func() time.Time) Option {
	return func(m *Migrator) error {
		m.timeNow = timeNow
		return nil
	}
}

// WithUnitTimeout limits the time each unit is allowed to run. A zero value
// disables the limit.
func WithUnitTimeout(d time.Duration) Option {
	return func(m *Migrator) error {
		if d < 0 {
			return errors.New("unit timeout must not be negative")
		}
		m.unitTimeout = d
		return nil
	}
}

// DefaultOptions returns the default Migrator options.
func DefaultOptions() []Option {
	return []Option{
		WithConfirmer(AlwaysConfirm),
		WithHistoryTable(DefaultHistoryTable),
		WithLocation(time.Local),
		WithLogger(slog.Default()),
		WithOutput(io.Discard),
		WithTemplate(DefaultTemplate),
		WithTimeNow(time.Now),
	}
}
