package app

import (
	"errors"

	"go.hackfix.me/dbmig/db/migrator"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitMigrationFailed = 2
)

// ExitCode returns the process exit code for the error returned by Run.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, migrator.ErrUnitFailed):
		return ExitMigrationFailed
	default:
		return ExitError
	}
}
