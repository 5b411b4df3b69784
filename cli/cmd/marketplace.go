package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/tool"
)

// ShareResponse is the result of share and unshare.
type ShareResponse struct {
	Publisher     string   `json:"publisher"`
	ExtensionID   string   `json:"extension_id"`
	Action        string   `json:"action"`
	Organizations []string `json:"organizations"`
}

// ValidityResponse is the result of is-valid.
type ValidityResponse struct {
	Publisher   string `json:"publisher"`
	ExtensionID string `json:"extension_id"`
	Version     string `json:"version,omitempty"`
	Status      string `json:"status"`
	Valid       bool   `json:"valid"`
}

func marketplaceFlags(extra ...cli.Flag) []cli.Flag {
	return concatFlags(extra, IdentityFlags(), ServiceFlags(), EnvFlags(), []cli.Flag{FormatFlag, NoColorFlag})
}

// ShowCommand returns the show command.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:   "show",
		Usage:  "Show marketplace metadata of a published extension",
		Flags:  marketplaceFlags(),
		Action: showAction,
	}
}

func showAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "show")
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = env.Close() }()

	id, err := lookupIdentity(c, env)
	if err != nil {
		return fail(env, err)
	}
	args := serviceArgs(env, []string{"extension", "show", "--publisher", id.Publisher, "--extension-id", id.ExtensionID})
	res, err := runTool(c.Context, env, args, tool.ExecOptions{CaptureJSON: true, Publisher: id.Publisher, ExtensionID: id.ExtensionID})
	if err != nil {
		return fail(env, err)
	}
	if !res.Succeeded() {
		return fail(env, toolFailed(args, res))
	}
	if !res.HasJSON() {
		return fail(env, errors.New("tool returned no extension metadata"))
	}
	return r.Render(res.JSON)
}

// ShareCommand returns the share command.
func ShareCommand() *cli.Command {
	return &cli.Command{
		Name:  "share",
		Usage: "Share a private extension with organizations",
		Flags: marketplaceFlags(&cli.StringSliceFlag{
			Name:     "share-with",
			Usage:    "Organizations to share with",
			Required: true,
		}),
		Action: shareAction("share", "share-with"),
	}
}

// UnshareCommand returns the unshare command.
func UnshareCommand() *cli.Command {
	return &cli.Command{
		Name:  "unshare",
		Usage: "Stop sharing a private extension with organizations",
		Flags: marketplaceFlags(&cli.StringSliceFlag{
			Name:     "unshare-with",
			Usage:    "Organizations to unshare from",
			Required: true,
		}),
		Action: shareAction("unshare", "unshare-with"),
	}
}

func shareAction(verb, flag string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		env, err := NewEnv(c, verb)
		if err != nil {
			return fail(nil, err)
		}
		defer func() { _ = env.Close() }()

		id, err := lookupIdentity(c, env)
		if err != nil {
			return fail(env, err)
		}
		orgs := splitOrganizations(c.StringSlice(flag))
		if len(orgs) == 0 {
			return fail(env, fmt.Errorf("--%s requires at least one organization", flag))
		}

		args := []string{"extension", verb, "--publisher", id.Publisher, "--extension-id", id.ExtensionID}
		args = serviceArgs(env, args)
		args = append(args, "--"+flag)
		args = append(args, orgs...)

		res, err := runTool(c.Context, env, args, tool.ExecOptions{CaptureJSON: true, Publisher: id.Publisher, ExtensionID: id.ExtensionID})
		if err != nil {
			return fail(env, err)
		}
		if !res.Succeeded() {
			return fail(env, toolFailed(args, res))
		}
		return r.Render(ShareResponse{
			Publisher:     id.Publisher,
			ExtensionID:   id.ExtensionID,
			Action:        verb,
			Organizations: orgs,
		})
	}
}

// IsValidCommand returns the is-valid command.
func IsValidCommand() *cli.Command {
	return &cli.Command{
		Name:  "is-valid",
		Usage: "Check marketplace validation status of a published version",
		Flags: marketplaceFlags(&cli.StringFlag{
			Name:  "extension-version",
			Usage: "Version to check (default: latest)",
		}),
		Action: isValidAction,
	}
}

func isValidAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "is-valid")
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = env.Close() }()

	id, err := lookupIdentity(c, env)
	if err != nil {
		return fail(env, err)
	}
	args := []string{"extension", "isvalid", "--publisher", id.Publisher, "--extension-id", id.ExtensionID}
	if id.Version != "" {
		args = append(args, "--version", id.Version)
	}
	args = serviceArgs(env, args)

	res, err := runTool(c.Context, env, args, tool.ExecOptions{CaptureJSON: true, Publisher: id.Publisher, ExtensionID: id.ExtensionID})
	if err != nil {
		return fail(env, err)
	}

	resp := ValidityResponse{
		Publisher:   id.Publisher,
		ExtensionID: id.ExtensionID,
		Version:     id.Version,
		Status:      validationStatus(res.JSON),
	}
	if resp.Status == "" && !res.Succeeded() {
		resp.Status = "error"
	}
	resp.Valid = res.Succeeded() && (resp.Status == "success" || resp.Status == "valid")
	if err := r.Render(resp); err != nil {
		return err
	}
	if !resp.Valid {
		return cli.Exit("", exitFailure)
	}
	return nil
}

// validationStatus extracts the status from the tool's JSON result.
func validationStatus(v any) string {
	switch x := v.(type) {
	case map[string]any:
		return strings.ToLower(jsonString(x, "status", "result"))
	case string:
		return strings.ToLower(x)
	}
	return ""
}

// splitOrganizations flattens comma or whitespace separated lists.
func splitOrganizations(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
		})...)
	}
	return out
}
