package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/reader"
	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/cli/tui"
	"github.com/pithecene-io/vsixctl/vsix"
)

// InspectCommand returns the inspect command. It reads a package or
// source directory locally and never runs the packaging tool.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a .vsix file or extension source directory",
		ArgsUsage: "<path>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("path required", exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	pkg, err := vsix.OpenAny(c.Args().First())
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = pkg.Close() }()

	summary, err := reader.InspectExtension(pkg)
	if err != nil {
		return fail(nil, err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectExtension, summary)
	}
	return r.Render(summary)
}
