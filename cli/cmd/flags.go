// Package cmd provides CLI commands for the vsixctl binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, history --stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, history --stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// EnvFlags configure the execution environment of commands that run the
// packaging tool or touch the ledger.
func EnvFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to vsixctl.yaml or vsixctl.toml (default: discovered in the working directory)",
		},
		&cli.StringFlag{
			Name:  "platform",
			Usage: "Host platform: auto, local, azure-pipelines, github-actions",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Local log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "tool-version",
			Usage: "Packaging tool version: embedded, latest, or an exact version",
		},
		&cli.StringFlag{
			Name:  "metrics-textfile",
			Usage: "Write Prometheus metrics to this file at exit",
		},
	}
}

// ServiceFlags identify the marketplace or organization and its credentials.
func ServiceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "service-url",
			Usage: "Marketplace or organization URL",
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Personal access token",
			EnvVars: []string{"AZURE_DEVOPS_EXT_PAT"},
		},
	}
}

// IdentityFlags select an extension by publisher and id.
func IdentityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "publisher",
			Usage: "Extension publisher",
		},
		&cli.StringFlag{
			Name:  "extension-id",
			Usage: "Extension id",
		},
		&cli.StringFlag{
			Name:  "vsix",
			Usage: "Read publisher and extension id from this package",
		},
	}
}

// ManifestFlags override extension manifest fields.
func ManifestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "publisher", Usage: "Override the publisher"},
		&cli.StringFlag{Name: "extension-id", Usage: "Override the extension id"},
		&cli.StringFlag{Name: "extension-version", Usage: "Override the extension version"},
		&cli.StringFlag{Name: "extension-name", Usage: "Override the display name"},
		&cli.StringFlag{Name: "extension-description", Usage: "Override the description"},
		&cli.StringFlag{Name: "extension-visibility", Usage: "private, public, private_preview or public_preview"},
		&cli.StringFlag{Name: "extension-pricing", Usage: "default, free, paid or trial"},
		&cli.BoolFlag{Name: "update-tasks-version", Usage: "Set every task version to the extension version"},
		&cli.BoolFlag{Name: "update-tasks-id", Usage: "Derive every task id from the extension identity"},
	}
}

func concatFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
