// Package main provides the vsixctl CLI entrypoint.
//
// Usage:
//
//	vsixctl <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: the packaging tool failed, or input was invalid
//   - 2: the packaging tool could not be resolved or started
//   - 3: an archive path was rejected
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/cmd"
	"github.com/pithecene-io/vsixctl/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "vsixctl",
		Usage:          "Package, edit and publish Azure DevOps extensions",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.PackageCommand(),
			cmd.PublishCommand(),
			cmd.ShowCommand(),
			cmd.ShareCommand(),
			cmd.UnshareCommand(),
			cmd.InstallCommand(),
			cmd.IsValidCommand(),
			cmd.InspectCommand(),
			cmd.PatchCommand(),
			cmd.ToolCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand("", commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N) carries no message worth printing.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
