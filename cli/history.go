package cli

import (
	"fmt"
	"time"

	actx "go.hackfix.me/dbmig/app/context"
	aerrors "go.hackfix.me/dbmig/app/errors"
)

// History shows the applied migrations.
type History struct {
	Limit limitArg `arg:"" optional:"" default:"10" help:"Maximum number of migrations to show, or 'all'."`
}

// Run the history command.
func (c *History) Run(appCtx *actx.Context) error {
	records, err := appCtx.Migrator.History(appCtx.Ctx, int(c.Limit))
	if err != nil {
		//nolint:wrapcheck // Errors are annotated by the migrator.
		return err
	}

	if len(records) == 0 {
		_, err = fmt.Fprintln(appCtx.Stdout, "No migration has been done before.")
		return err //nolint:wrapcheck // This is fine.
	}

	n := len(records)
	if c.Limit > 0 {
		_, err = fmt.Fprintf(appCtx.Stdout, "Showing the last %d applied %s:\n", n, plural(n))
	} else {
		_, err = fmt.Fprintf(appCtx.Stdout, "Total %d %s been applied before:\n", n, pluralHave(n))
	}
	if err != nil {
		return aerrors.NewWithCause("failed writing to stdout", err)
	}

	table := newVersionTable("Applied At", appCtx.Migrator.Location())
	for _, rec := range records {
		table.add(rec.AppliedAt, rec.Version)
	}
	if err = table.render(appCtx.Stdout); err != nil {
		return aerrors.NewWithCause("failed rendering migration history", err)
	}

	return nil
}

// Pending shows the migrations that haven't been applied yet.
type Pending struct {
	Limit limitArg `arg:"" optional:"" default:"10" help:"Maximum number of migrations to show, or 'all'."`
}

// Run the new command.
func (c *Pending) Run(appCtx *actx.Context) error {
	versions, total, err := appCtx.Migrator.Pending(appCtx.Ctx, int(c.Limit))
	if err != nil {
		//nolint:wrapcheck // Errors are annotated by the migrator.
		return err
	}

	if total == 0 {
		_, err = fmt.Fprintln(appCtx.Stdout, "No new migrations found. Your system is up-to-date.")
		return err //nolint:wrapcheck // This is fine.
	}

	if len(versions) < total {
		_, err = fmt.Fprintf(appCtx.Stdout, "Showing %d out of %d new %s:\n",
			len(versions), total, plural(total))
	} else {
		_, err = fmt.Fprintf(appCtx.Stdout, "Found %d new %s:\n", total, plural(total))
	}
	if err != nil {
		return aerrors.NewWithCause("failed writing to stdout", err)
	}

	table := newVersionTable("Created At (UTC)", time.UTC)
	for _, v := range versions {
		created, _ := versionTime(v)
		table.add(created, v)
	}
	if err = table.render(appCtx.Stdout); err != nil {
		return aerrors.NewWithCause("failed rendering new migrations", err)
	}

	return nil
}

func plural(n int) string {
	if n == 1 {
		return "migration"
	}
	return "migrations"
}

func pluralHave(n int) string {
	if n == 1 {
		return "migration has"
	}
	return "migrations have"
}
