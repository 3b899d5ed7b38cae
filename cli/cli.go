package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/dbmig/app/config"
	actx "go.hackfix.me/dbmig/app/context"
)

// CLI is the command line interface of dbmig.
type CLI struct {
	Up      Up      `kong:"cmd,default='withargs',help='Apply new migrations.'"`
	Down    Down    `kong:"cmd,help='Revert applied migrations.'"`
	Redo    Redo    `kong:"cmd,help='Revert and apply again the most recent migrations.'"`
	To      To      `kong:"cmd,help='Migrate up or down to a specific version.'"`
	Mark    Mark    `kong:"cmd,help='Change the migration history without running migrations.'"`
	History History `kong:"cmd,help='Show the applied migrations.'"`
	New     Pending `kong:"cmd,help='Show the new migrations that have not been applied.'"`
	Create  Create  `kong:"cmd,help='Create a new migration file.'"`

	Log struct {
		Level slog.Level `enum:"DEBUG,INFO,WARN,ERROR" default:"INFO" help:"Set the app logging level."`
	} `embed:"" prefix:"log-"`
	// NOTE: kong.ConfigFlag isn't used, since the configuration file has its
	// own format and precedence rules.
	ConfigFile string `kong:"default='${configFile}',help='Path to the dbmig configuration file.'"`

	Driver         string        `help:"Database driver: sqlite, postgres or mysql."`
	DSN            string        `name:"dsn" help:"Database data source name."`
	MigrationPath  string        `help:"Directory containing the migration files."`
	MigrationTable string        `help:"Name of the migration history table."`
	TemplateFile   string        `help:"Template file used to create new migrations."`
	UnitTimeout    time.Duration `type:"duration" help:"Maximum time a single migration may run, e.g. 30s or 5m."`
	Timezone       string        `help:"Time zone datetime targets are interpreted in. Defaults to the local time zone."`
	Yes            bool          `short:"y" help:"Run without asking for confirmation."`

	Version kong.VersionFlag `kong:"help='Output version and exit.'"`

	kong *kong.Kong
	kctx *kong.Context
}

// New initializes the command-line interface.
func New(configFilePath, version string) (*CLI, error) {
	c := &CLI{}
	kparser, err := kong.New(c,
		kong.Name("dbmig"),
		kong.Description("Manage versioned database schema migrations."),
		kong.UsageOnError(),
		kong.DefaultEnvars("DBMIG"),
		kong.NamedMapper("duration", DurationMapper{}),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			Summary:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"configFile": configFilePath,
			"version":    version,
			"targetHelp": targetHelp,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating the Kong parser: %w", err)
	}

	c.kong = kparser

	return c, nil
}

// Execute starts the command execution. Parse must be called before this method.
func (c *CLI) Execute(appCtx *actx.Context) error {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	c.kong.Stdout = appCtx.Stdout
	c.kong.Stderr = appCtx.Stderr

	//nolint:wrapcheck // This is fine.
	return c.kctx.Run(appCtx)
}

// Parse the given command line arguments. This method must be called before
// Execute.
func (c *CLI) Parse(args []string) error {
	kctx, err := c.kong.Parse(args)
	if err != nil {
		return fmt.Errorf("failed parsing CLI arguments: %w", err)
	}
	c.kctx = kctx

	return nil
}

// Command returns the full path of the executed command.
func (c *CLI) Command() string {
	if c.kctx == nil {
		panic("the CLI wasn't initialized properly")
	}
	cmdPath := []string{}
	for _, p := range c.kctx.Path {
		if p.Command != nil {
			cmdPath = append(cmdPath, p.Command.Name)
		}
	}

	return strings.Join(cmdPath, " ")
}

// NeedsDB returns whether the executed command reads or writes the database.
func (c *CLI) NeedsDB() bool {
	return c.Command() != "create"
}

// ApplyConfig applies configuration values to the CLI, but only if they weren't
// already set.
func (c *CLI) ApplyConfig(cfg *config.Config) {
	setIfEmpty(&c.Driver, cfg.Database.Driver)
	setIfEmpty(&c.DSN, cfg.Database.DSN)
	setIfEmpty(&c.MigrationPath, cfg.Migrations.Path)
	setIfEmpty(&c.MigrationTable, cfg.Migrations.Table)
	setIfEmpty(&c.TemplateFile, cfg.Migrations.TemplateFile)
	setIfEmpty(&c.Timezone, cfg.Migrations.Timezone)

	if c.UnitTimeout == 0 && cfg.Migrations.UnitTimeout.Valid {
		c.UnitTimeout = cfg.Migrations.UnitTimeout.V
	}
	if !c.Yes && cfg.Migrations.Interactive.Valid && !cfg.Migrations.Interactive.V {
		c.Yes = true
	}
}

func setIfEmpty(dst *string, src sql.Null[string]) {
	if *dst == "" && src.Valid {
		*dst = src.V
	}
}
