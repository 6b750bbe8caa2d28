package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/reportbuilder/cmd/reportbuilder/commands"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := &commands.CLI{}
	parser, err := kong.New(cli,
		kong.Name("reportbuilder"),
		kong.Description("Build, version and serve documentation reports."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return 2
	}

	global := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(global, cli); err != nil {
		adapter := derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		adapter.Log(err)
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		return adapter.ExitCodeFor(err)
	}
	return 0
}
