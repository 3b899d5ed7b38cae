package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/dbmig/xtime"
)

// Default configuration values.
const (
	DefaultDriver        = "sqlite"
	DefaultMigrationPath = "migrations"
	DefaultTable         = "tbl_migration"
)

// Config represents the application configuration, read from a JSON file on
// a filesystem.
type Config struct {
	Database   Database
	Migrations Migrations

	fs   vfs.FileSystem
	path string
}

// NewConfig creates a new Config instance with the specified filesystem
// and configuration file path.
func NewConfig(fs vfs.FileSystem, path string) *Config {
	return &Config{fs: fs, path: path}
}

// Load reads and parses the configuration file from the filesystem.
// If the file doesn't exist, it initializes with an empty configuration.
func (c *Config) Load() error {
	configJSON, err := vfs.ReadFile(c.fs, c.path)
	if err != nil && !vfs.IsErrNotExist(err) {
		return fmt.Errorf("failed reading configuration file: %w", err)
	}

	// Ensure that unmarshalling JSON doesn't fail if the file doesn't exist or is empty.
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	if err = json.Unmarshal(configJSON, c); err != nil {
		return fmt.Errorf("failed parsing configuration file %s: %w", c.path, err)
	}

	return nil
}

// Path returns the filesystem path where the configuration is stored.
func (c *Config) Path() string {
	return c.path
}

// Expand replaces ${var} or $var in string values with the result of
// lookup. This allows keeping secrets such as the DSN out of the file.
func (c *Config) Expand(lookup func(string) string) {
	expand := func(v *sql.Null[string]) {
		if v.Valid {
			v.V = os.Expand(v.V, lookup)
		}
	}
	expand(&c.Database.Driver)
	expand(&c.Database.DSN)
	expand(&c.Migrations.Path)
	expand(&c.Migrations.TemplateFile)
}

// Database defines the connection options.
type Database struct {
	// Driver is the name of the database driver: sqlite, postgres or mysql.
	Driver sql.Null[string] `json:"driver"`
	// DSN is the data source name passed to the driver.
	DSN sql.Null[string] `json:"dsn"`
}

// Migrations defines options for running and creating migrations.
type Migrations struct {
	// Path is the directory containing the migration files.
	Path sql.Null[string] `json:"path"`
	// Table is the name of the migration history table.
	Table sql.Null[string] `json:"table"`
	// TemplateFile is the file new migrations are rendered from.
	TemplateFile sql.Null[string] `json:"template_file"`
	// Interactive enables confirmation prompts.
	Interactive sql.Null[bool] `json:"interactive"`
	// UnitTimeout is the maximum time a single migration may run.
	// It serializes from/to xtime.Duration string values.
	UnitTimeout sql.Null[time.Duration] `json:"unit_timeout"`
	// Timezone is the IANA time zone datetime targets are interpreted in.
	Timezone sql.Null[string] `json:"timezone"`
	// ReapplyAfterFailedRevert makes redo apply again the migrations it
	// already reverted if a later revert fails.
	ReapplyAfterFailedRevert sql.Null[bool] `json:"reapply_after_failed_revert"`
}

type cfgWrapper struct {
	Database   dbCfgWrapper  `json:"database"`
	Migrations migCfgWrapper `json:"migrations"`
}
type dbCfgWrapper struct {
	Driver string `json:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty"`
}
type migCfgWrapper struct {
	Path                     string `json:"path,omitempty"`
	Table                    string `json:"table,omitempty"`
	TemplateFile             string `json:"template_file,omitempty"`
	Interactive              *bool  `json:"interactive,omitempty"`
	UnitTimeout              string `json:"unit_timeout,omitempty"`
	Timezone                 string `json:"timezone,omitempty"`
	ReapplyAfterFailedRevert *bool  `json:"reapply_after_failed_revert,omitempty"`
}

// MarshalJSON implements custom JSON marshaling to convert sql.Null values
// to their underlying types, omitting invalid/null fields from the output.
func (c Config) MarshalJSON() ([]byte, error) {
	w := cfgWrapper{}

	if c.Database.Driver.Valid {
		w.Database.Driver = c.Database.Driver.V
	}
	if c.Database.DSN.Valid {
		w.Database.DSN = c.Database.DSN.V
	}

	m := c.Migrations
	if m.Path.Valid {
		w.Migrations.Path = m.Path.V
	}
	if m.Table.Valid {
		w.Migrations.Table = m.Table.V
	}
	if m.TemplateFile.Valid {
		w.Migrations.TemplateFile = m.TemplateFile.V
	}
	if m.Interactive.Valid {
		w.Migrations.Interactive = &m.Interactive.V
	}
	if m.UnitTimeout.Valid {
		w.Migrations.UnitTimeout = xtime.FormatDuration(m.UnitTimeout.V, time.Millisecond)
	}
	if m.Timezone.Valid {
		w.Migrations.Timezone = m.Timezone.V
	}
	if m.ReapplyAfterFailedRevert.Valid {
		w.Migrations.ReapplyAfterFailedRevert = &m.ReapplyAfterFailedRevert.V
	}

	//nolint:wrapcheck // This is fine.
	return json.Marshal(w)
}

// UnmarshalJSON implements custom JSON unmarshaling to convert plain values
// into sql.Null types and parse duration strings into time.Duration values.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w cfgWrapper
	if err := json.Unmarshal(data, &w); err != nil {
		//nolint:wrapcheck // This is fine.
		return err
	}

	if w.Database.Driver != "" {
		c.Database.Driver = sql.Null[string]{V: w.Database.Driver, Valid: true}
	}
	if w.Database.DSN != "" {
		c.Database.DSN = sql.Null[string]{V: w.Database.DSN, Valid: true}
	}

	if w.Migrations.Path != "" {
		c.Migrations.Path = sql.Null[string]{V: w.Migrations.Path, Valid: true}
	}
	if w.Migrations.Table != "" {
		c.Migrations.Table = sql.Null[string]{V: w.Migrations.Table, Valid: true}
	}
	if w.Migrations.TemplateFile != "" {
		c.Migrations.TemplateFile = sql.Null[string]{V: w.Migrations.TemplateFile, Valid: true}
	}
	if w.Migrations.Interactive != nil {
		c.Migrations.Interactive = sql.Null[bool]{V: *w.Migrations.Interactive, Valid: true}
	}
	if w.Migrations.UnitTimeout != "" {
		dur, err := xtime.ParseDuration(w.Migrations.UnitTimeout)
		if err != nil {
			return fmt.Errorf("failed parsing migration unit timeout: %w", err)
		}
		if dur < 0 {
			return fmt.Errorf("migration unit timeout must not be negative: %s", w.Migrations.UnitTimeout)
		}
		c.Migrations.UnitTimeout = sql.Null[time.Duration]{V: dur, Valid: true}
	}
	if w.Migrations.Timezone != "" {
		if _, err := time.LoadLocation(w.Migrations.Timezone); err != nil {
			return fmt.Errorf("failed parsing time zone: %w", err)
		}
		c.Migrations.Timezone = sql.Null[string]{V: w.Migrations.Timezone, Valid: true}
	}
	if w.Migrations.ReapplyAfterFailedRevert != nil {
		c.Migrations.ReapplyAfterFailedRevert = sql.Null[bool]{
			V: *w.Migrations.ReapplyAfterFailedRevert, Valid: true,
		}
	}

	return nil
}

// SetDefaults sets default configuration values if they weren't set already.
func (c *Config) SetDefaults() {
	if !c.Database.Driver.Valid {
		c.Database.Driver = sql.Null[string]{V: DefaultDriver, Valid: true}
	}
	if !c.Migrations.Path.Valid {
		c.Migrations.Path = sql.Null[string]{V: DefaultMigrationPath, Valid: true}
	}
	if !c.Migrations.Table.Valid {
		c.Migrations.Table = sql.Null[string]{V: DefaultTable, Valid: true}
	}
	if !c.Migrations.Interactive.Valid {
		c.Migrations.Interactive = sql.Null[bool]{V: true, Valid: true}
	}
	if !c.Migrations.ReapplyAfterFailedRevert.Valid {
		c.Migrations.ReapplyAfterFailedRevert = sql.Null[bool]{V: false, Valid: true}
	}
}
