package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/tool"
)

// DefaultOrganizationURL is the base of per-organization service URLs.
const DefaultOrganizationURL = "https://dev.azure.com"

// Install statuses.
const (
	InstallInstalled        = "installed"
	InstallAlreadyInstalled = "already_installed"
	InstallFailed           = "failed"
)

// InstallResult is the outcome for one organization.
type InstallResult struct {
	Organization string `json:"organization"`
	Status       string `json:"status"`
	ExitCode     int    `json:"exit_code"`
}

// alreadyInstalledMarkers identify the tool's "nothing to do" failure.
var alreadyInstalledMarkers = []string{"already installed", "tf1590010"}

// InstallCommand returns the install command.
func InstallCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Install a published extension into one or more organizations",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringSliceFlag{Name: "organizations", Aliases: []string{"accounts"}, Usage: "Target organizations", Required: true},
				&cli.StringFlag{Name: "organization-url", Usage: "Base URL of organizations", Value: DefaultOrganizationURL},
				&cli.StringFlag{Name: "extension-version", Usage: "Version to install (default: latest)"},
			},
			IdentityFlags(),
			ServiceFlags(),
			EnvFlags(),
			[]cli.Flag{FormatFlag, NoColorFlag},
		),
		Action: installAction,
	}
}

func installAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "install")
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = env.Close() }()

	id, err := lookupIdentity(c, env)
	if err != nil {
		return fail(env, err)
	}
	orgs := splitOrganizations(c.StringSlice("organizations"))
	if len(orgs) == 0 {
		return fail(env, fmt.Errorf("--organizations requires at least one organization"))
	}
	base := strings.TrimRight(c.String("organization-url"), "/")

	results := make([]InstallResult, 0, len(orgs))
	failed := 0
	for _, org := range orgs {
		args := []string{"extension", "install", "--publisher", id.Publisher, "--extension-id", id.ExtensionID}
		if id.Version != "" {
			args = append(args, "--extension-version", id.Version)
		}
		args = append(args, "--service-url", base+"/"+org)
		if env.Token != "" {
			args = append(args, "--auth-type", "pat", "--token", env.Token)
		}

		res, err := runTool(c.Context, env, args, tool.ExecOptions{CaptureJSON: true, Publisher: id.Publisher, ExtensionID: id.ExtensionID})
		if err != nil {
			return fail(env, err)
		}
		result := InstallResult{Organization: org, ExitCode: res.ExitCode, Status: installStatus(res.ExitCode, res.Stdout+res.Stderr)}
		if result.Status == InstallFailed {
			failed++
			env.Host.Error(fmt.Sprintf("install into %s failed with exit code %d", org, res.ExitCode))
		} else if result.Status == InstallAlreadyInstalled {
			env.Host.Info(fmt.Sprintf("%s.%s is already installed in %s", id.Publisher, id.ExtensionID, org))
		}
		results = append(results, result)
	}

	if err := r.Render(results); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("install failed for %d of %d organizations", failed, len(orgs)), exitFailure)
	}
	return nil
}

// installStatus classifies one install attempt. The tool exits non-zero
// when the extension is already present; that counts as success.
func installStatus(exitCode int, output string) string {
	if exitCode == 0 {
		return InstallInstalled
	}
	lower := strings.ToLower(output)
	for _, m := range alreadyInstalledMarkers {
		if strings.Contains(lower, m) {
			return InstallAlreadyInstalled
		}
	}
	return InstallFailed
}
