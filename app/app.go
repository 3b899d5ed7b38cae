package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/dbmig/app/config"
	actx "go.hackfix.me/dbmig/app/context"
	aerrors "go.hackfix.me/dbmig/app/errors"
	"go.hackfix.me/dbmig/cli"
	"go.hackfix.me/dbmig/db"
	"go.hackfix.me/dbmig/db/migrator"
	"go.hackfix.me/dbmig/db/types"
)

// Files read into the environment before the CLI arguments are parsed.
// Variables already set in the environment are never overridden, and values
// in later files take precedence over earlier ones.
var dotEnvFiles = []string{".env", ".env.local"}

// App is the application.
type App struct {
	name string
	ctx  *actx.Context
	cli  *cli.CLI
	// the logging level is set via the CLI, if the app was initialized with the
	// WithLogger option.
	logLevel *slog.LevelVar
}

// New initializes a new application.
func New(name, configFilePath string, opts ...Option) (*App, error) {
	version, err := actx.GetVersion()
	if err != nil {
		return nil, err
	}

	defaultCtx := &actx.Context{
		Ctx:     context.Background(),
		FS:      memoryfs.New(),
		Env:     actx.OSEnv{},
		Logger:  slog.Default(),
		TimeNow: time.Now,
		Version: version,
	}
	app := &App{name: name, ctx: defaultCtx}

	for _, opt := range opts {
		opt(app)
	}

	ver := fmt.Sprintf("%s %s", app.name, app.ctx.Version.String())
	app.cli, err = cli.New(configFilePath, ver)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run initializes the application environment and starts execution of the
// application.
func (app *App) Run(args []string) (rerr error) {
	if err := app.loadDotEnv(); err != nil {
		return err
	}

	if err := app.cli.Parse(args); err != nil {
		return err
	}

	if app.logLevel != nil {
		app.logLevel.Set(app.cli.Log.Level)
		slog.SetLogLoggerLevel(app.cli.Log.Level)
	}

	cfg := config.NewConfig(app.ctx.FS, app.cli.ConfigFile)
	if err := cfg.Load(); err != nil {
		return err
	}
	cfg.Expand(app.ctx.Env.Get)
	cfg.SetDefaults()
	app.ctx.Config = cfg
	app.cli.ApplyConfig(cfg)

	defer func() {
		if app.ctx.DB == nil {
			return
		}
		if err := app.ctx.DB.Close(); err != nil {
			rerr = errors.Join(rerr, fmt.Errorf("failed closing database: %w", err))
		}
		app.ctx.DB = nil
	}()

	if err := app.initMigrator(); err != nil {
		return err
	}

	return app.cli.Execute(app.ctx)
}

// loadDotEnv sets environment variables from the dotenv files in the working
// directory, if they exist.
func (app *App) loadDotEnv() error {
	vars := map[string]string{}
	for _, path := range dotEnvFiles {
		f, err := app.ctx.FS.Open(path)
		if err != nil {
			if vfs.IsErrNotExist(err) {
				continue
			}
			return fmt.Errorf("failed opening %s: %w", path, err)
		}

		fileVars, err := godotenv.Parse(f)
		_ = f.Close()
		if err != nil {
			return aerrors.NewWithCause("failed parsing dotenv file", err, "path", path)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	for k, v := range vars {
		if app.ctx.Env.Get(k) != "" {
			continue
		}
		if err := app.ctx.Env.Set(k, v); err != nil {
			return fmt.Errorf("failed setting environment variable %s: %w", k, err)
		}
	}

	return nil
}

// initMigrator builds the migrator from the merged CLI and configuration
// options, connecting to the database if the command needs one.
func (app *App) initMigrator() error {
	c := app.cli

	cat, err := migrator.NewDirCatalog(app.ctx.FS, c.MigrationPath)
	if err != nil {
		return aerrors.With(err, "path", c.MigrationPath)
	}

	loc := time.Local
	if c.Timezone != "" {
		if loc, err = time.LoadLocation(c.Timezone); err != nil {
			return aerrors.NewWithCause("invalid time zone", err, "timezone", c.Timezone)
		}
	}

	template := ""
	if c.TemplateFile != "" {
		tpl, err := vfs.ReadFile(app.ctx.FS, c.TemplateFile)
		if err != nil {
			return aerrors.NewWithCause("failed reading migration template", err, "path", c.TemplateFile)
		}
		template = string(tpl)
	}

	confirmer := migrator.AlwaysConfirm
	if !c.Yes {
		confirmer = cli.NewConfirmer(app.ctx.Stdin, app.ctx.Stdout, app.ctx.Stderr)
	}

	var (
		q       types.Querier
		dialect types.Dialect
	)
	if c.NeedsDB() {
		d, err := db.Open(app.ctx.Ctx, c.Driver, c.DSN)
		if err != nil {
			return err
		}
		app.ctx.DB = d
		q, dialect = d, d.Dialect()
	}

	app.ctx.Migrator, err = migrator.New(q, dialect, cat,
		migrator.WithLogger(app.ctx.Logger),
		migrator.WithOutput(app.ctx.Stdout),
		migrator.WithConfirmer(confirmer),
		migrator.WithTimeNow(app.ctx.TimeNow),
		migrator.WithLocation(loc),
		migrator.WithHistoryTable(c.MigrationTable),
		migrator.WithTemplate(template),
		migrator.WithUnitTimeout(c.UnitTimeout),
		migrator.WithReapplyAfterFailedRevert(app.ctx.Config.Migrations.ReapplyAfterFailedRevert.V),
	)
	if err != nil {
		return err
	}

	return nil
}
