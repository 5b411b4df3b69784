package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/reader"
	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/cli/tui"
	"github.com/pithecene-io/vsixctl/ledger"
	"github.com/pithecene-io/vsixctl/types"
)

// HistoryCommand returns the history command. It reads the ledger only.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded tool invocations and packages",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{Name: "kind", Usage: "Record kind: invocation, package"},
				&cli.StringFlag{Name: "publisher", Usage: "Filter by publisher"},
				&cli.StringFlag{Name: "extension-id", Usage: "Filter by extension ID"},
				&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum records to read (0 for all)"},
				&cli.BoolFlag{Name: "stats", Usage: "Show aggregate statistics instead of records"},
				&cli.StringFlag{Name: "config", Usage: "Path to vsixctl.yaml or vsixctl.toml"},
				&cli.StringFlag{Name: "log-level", Usage: "Local log level: debug, info, warn, error"},
			},
			ReadOnlyFlags(),
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	kind := c.String("kind")
	switch kind {
	case "", types.RecordKindInvocation, types.RecordKindPackage:
	default:
		return cli.Exit(fmt.Sprintf("invalid --kind %q (must be invocation or package)", kind), exitFailure)
	}
	if c.Bool("tui") && !c.Bool("stats") {
		return cli.Exit("--tui is only supported with --stats for history", exitFailure)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", exitFailure)
	}

	env, err := NewEnv(c, "history")
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = env.Close() }()
	if env.Ledger == nil {
		return cli.Exit("no ledger configured (set ledger.backend in vsixctl.yaml)", exitFailure)
	}

	q := ledger.Query{
		RecordKind:  kind,
		Publisher:   c.String("publisher"),
		ExtensionID: c.String("extension-id"),
		Limit:       c.Int("limit"),
	}

	if c.Bool("stats") {
		stats, err := reader.StatsHistory(c.Context, env.Ledger, q)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		if c.Bool("tui") {
			return r.RenderTUI(tui.ViewStatsHistory, stats)
		}
		return r.Render(stats)
	}

	items, err := reader.ListHistory(c.Context, env.Ledger, q)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(items)
}
