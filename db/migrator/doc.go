// Package migrator provides functionality to manage database schema migrations.
//
// Features:
//   - Discovers versioned migration units from a catalog, either a directory of
//     SQL files named `m{yymmdd}_{hhmmss}_{name}.sql` or units registered in Go
//   - Tracks applied versions in a history table that is created on first use
//   - Applies pending units (`up`), reverts applied ones (`down`, `redo`), and
//     migrates to a target version, UNIX timestamp or datetime (`to`)
//   - Adjusts the history without running any unit (`mark`)
//   - Stops a batch at the first failing unit, keeping the history consistent
//     with the units that completed
//
// Only a single operator is expected to run migrations against a database at
// any time. No locking is done.
package migrator
