package main

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/mandelsoft/vfs/pkg/osfs"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"go.hackfix.me/dbmig/app"
	actx "go.hackfix.me/dbmig/app/context"
	aerrors "go.hackfix.me/dbmig/app/errors"
)

func main() {
	configFile := filepath.Join(xdg.ConfigHome, "dbmig", "config.json")

	a, err := app.New("dbmig", configFile,
		app.WithEnv(actx.OSEnv{}),
		app.WithFDs(
			os.Stdin,
			colorable.NewColorable(os.Stdout),
			colorable.NewColorable(os.Stderr),
		),
		app.WithFS(osfs.New()),
		app.WithLogger(isatty.IsTerminal(os.Stderr.Fd())),
	)
	if err != nil {
		aerrors.Log(nil, err)
		os.Exit(app.ExitCode(err))
	}
	if err = a.Run(os.Args[1:]); err != nil {
		aerrors.Log(nil, err)
		os.Exit(app.ExitCode(err))
	}
}
