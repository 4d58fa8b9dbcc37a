package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/sitepack/cmd/sitepack/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build   commands.BuildCmd `cmd:"" help:"Build the site bundle"`
		Watch   commands.WatchCmd `cmd:"" help:"Build, then rebuild on change"`
		Check   commands.CheckCmd `cmd:"" help:"Validate the build descriptor"`
		Match   commands.MatchCmd `cmd:"" help:"Show which rule applies to each path"`
		Print   commands.PrintCmd `cmd:"" help:"Print the effective build descriptor"`
		Debug   bool              `help:"Enable debug mode."`
		Config  string            `help:"Build descriptor file (.yaml, .yml, .json or .hcl)" type:"existingfile" env:"SITEPACK_CONFIG"`
		Context string            `help:"Directory the built-in descriptor is anchored at" default:"." env:"SITEPACK_CONTEXT"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("sitepack"),
		kong.Description("Bundle a site's scripts and stylesheets."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Config:  cli.Config,
		Context: cli.Context,
	})
	cmd.FatalIfErrorf(err)
}
