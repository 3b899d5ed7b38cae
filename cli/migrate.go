package cli

import (
	actx "go.hackfix.me/dbmig/app/context"
)

// Up applies new migrations.
type Up struct {
	Step int `arg:"" optional:"" default:"0" help:"Number of new migrations to apply. 0 applies all of them."`
}

// Run the up command.
func (c *Up) Run(appCtx *actx.Context) error {
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return appCtx.Migrator.Up(appCtx.Ctx, c.Step)
}

// Down reverts applied migrations.
type Down struct {
	Step stepArg `arg:"" optional:"" default:"1" help:"Number of migrations to revert."`
}

// Run the down command.
func (c *Down) Run(appCtx *actx.Context) error {
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return appCtx.Migrator.Down(appCtx.Ctx, int(c.Step))
}

// Redo reverts the most recent migrations and applies them again.
type Redo struct {
	Step stepArg `arg:"" optional:"" default:"1" help:"Number of migrations to redo."`
}

// Run the redo command.
func (c *Redo) Run(appCtx *actx.Context) error {
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return appCtx.Migrator.Redo(appCtx.Ctx, int(c.Step))
}

const targetHelp = `Target version: a migration name (m101129_185401_create_user_table), ` +
	`its timestamp (101129_185401), a UNIX timestamp or a date and time.`

// To migrates up or down to a specific version.
type To struct {
	Target string `arg:"" help:"${targetHelp}"`
}

// Run the to command.
func (c *To) Run(appCtx *actx.Context) error {
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return appCtx.Migrator.To(appCtx.Ctx, c.Target)
}

// Mark changes the migration history without running any migrations.
type Mark struct {
	Target string `arg:"" help:"${targetHelp}"`
}

// Run the mark command.
func (c *Mark) Run(appCtx *actx.Context) error {
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return appCtx.Migrator.Mark(appCtx.Ctx, c.Target)
}
