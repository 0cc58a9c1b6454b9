package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pakctl/cmd/pakctl/commands"
	"git.home.luguber.info/inful/pakctl/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("pakctl"),
		kong.Description("Control package operations against the pakd daemon."),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("pakctl %s (commit %s, built %s)",
				version.Version, version.GitCommit, version.BuildTime),
		},
	)

	if err := ctx.Run(&commands.Global{Root: &cli}); err != nil {
		fmt.Fprintf(os.Stderr, "pakctl: %v\n", err)
		os.Exit(1)
	}
}
