package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
)

// ToolResponse describes the resolved packaging tool.
type ToolResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// ToolCommand returns the tool command group.
func ToolCommand() *cli.Command {
	return &cli.Command{
		Name:  "tool",
		Usage: "Manage the packaging tool",
		Subcommands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "Resolve (and install if needed) the packaging tool and print its path",
				Flags:  concatFlags(EnvFlags(), []cli.Flag{FormatFlag, NoColorFlag}),
				Action: toolResolveAction,
			},
		},
	}
}

func toolResolveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "tool")
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = env.Close() }()

	path, err := env.Tools.Resolve(c.Context)
	if err != nil {
		return fail(env, err)
	}
	return r.Render(ToolResponse{
		Name:    env.Tools.Name(),
		Version: env.Tools.Version(),
		Path:    path,
	})
}
