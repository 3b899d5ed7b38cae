package migrator

import "errors"

var (
	// ErrCatalogUnavailable is returned when the migration source location
	// doesn't exist or isn't a directory.
	ErrCatalogUnavailable = errors.New("migration catalog is unavailable")

	// ErrNoDatabase is returned by operations that need the history table on
	// a Migrator created without a database.
	ErrNoDatabase = errors.New("no database connection configured")

	// ErrCatalogReadOnly is returned when creating a unit in a catalog that
	// can't persist new entries.
	ErrCatalogReadOnly = errors.New("migration catalog is read-only")

	// ErrInvalidVersionTarget is returned when a target is neither a version,
	// a UNIX timestamp nor a datetime.
	ErrInvalidVersionTarget = errors.New(
		"the version must be either a timestamp (e.g. 101129_185401) " +
			"or the full name of a migration (e.g. m101129_185401_create_user_table)")

	// ErrUnknownVersion is returned when a version target matches neither a
	// pending nor an applied migration.
	ErrUnknownVersion = errors.New("unable to find the version")

	// ErrNoVersionBeforeTimestamp is returned when no migration was applied at
	// or before a requested time.
	ErrNoVersionBeforeTimestamp = errors.New("unable to find a version applied before the given time")

	// ErrInvalidStep is returned when a step count is out of range.
	ErrInvalidStep = errors.New("the step parameter must be greater than 0")

	// ErrInvalidName is returned by Create for names with characters other
	// than letters, digits and underscores.
	ErrInvalidName = errors.New(
		"the name of the migration must contain letters, digits and/or underscore characters only")

	// ErrUnitFailed is returned when a migration unit reports a failure, or its
	// execution returns an error.
	ErrUnitFailed = errors.New("migration failed")

	// ErrDuplicateVersion is returned when recording a version that's already
	// in the history. It indicates an inconsistent history table.
	ErrDuplicateVersion = errors.New("version is already recorded in the migration history")
)
