package cli

import (
	actx "go.hackfix.me/dbmig/app/context"
)

// Create creates a new migration file from a template.
type Create struct {
	Name string `arg:"" help:"Name of the new migration, e.g. create_user_table. Only letters, digits and underscores are allowed."`
}

// Run the create command.
func (c *Create) Run(appCtx *actx.Context) error {
	_, err := appCtx.Migrator.Create(appCtx.Ctx, c.Name)
	//nolint:wrapcheck // Errors are annotated by the migrator.
	return err
}
