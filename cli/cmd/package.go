package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/types"
)

// PackageResponse is the result of package and publish.
type PackageResponse struct {
	VSIXPath    string `json:"vsix_path"`
	Publisher   string `json:"publisher"`
	ExtensionID string `json:"extension_id"`
	Version     string `json:"version"`
	Published   bool   `json:"published"`
	ArchivePath string `json:"archive_path,omitempty"`
}

// PackageCommand returns the package command.
func PackageCommand() *cli.Command {
	return &cli.Command{
		Name:  "package",
		Usage: "Package an extension source directory into a .vsix",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{Name: "root", Usage: "Extension source directory", Value: "."},
				&cli.StringFlag{Name: "output-path", Usage: "Directory or file for the produced .vsix", Value: "."},
				&cli.StringSliceFlag{Name: "manifest-globs", Usage: "Manifest files to include (tool default when empty)"},
				&cli.BoolFlag{Name: "rev-version", Usage: "Increment the patch version"},
				&cli.BoolFlag{Name: "bypass-validation", Usage: "Skip the tool's manifest validation"},
			},
			ManifestFlags(),
			EnvFlags(),
			[]cli.Flag{FormatFlag, NoColorFlag},
		),
		Action: packageAction,
	}
}

func packageAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "package")
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = env.Close() }()

	src, err := openEdited(c.String("root"), manifestOptions(c))
	if err != nil {
		return fail(env, err)
	}
	defer func() { _ = src.Close() }()

	root, err := src.stageRoot()
	if err != nil {
		env.Collector.IncArchiveWriteFailure()
		return fail(env, err)
	}
	overrides, err := src.writer.OverridesPath()
	if err != nil {
		return fail(env, err)
	}

	args := []string{"extension", "create", "--root", root, "--output-path", c.String("output-path")}
	if globs := c.StringSlice("manifest-globs"); len(globs) > 0 {
		args = append(args, "--manifest-globs")
		args = append(args, globs...)
	}
	if overrides != "" {
		args = append(args, "--overrides-file", overrides)
	}
	if c.Bool("rev-version") {
		args = append(args, "--rev-version")
	}
	if c.Bool("bypass-validation") {
		args = append(args, "--bypass-validation")
	}

	res, err := runTool(c.Context, env, args, tool.ExecOptions{
		CaptureJSON: true,
		Publisher:   src.id.Publisher,
		ExtensionID: src.id.ExtensionID,
	})
	if err != nil {
		return fail(env, err)
	}
	if !res.Succeeded() {
		return fail(env, toolFailed(args, res))
	}

	resp := packageResponse(res, src.id)
	if resp.VSIXPath == "" {
		return fail(env, errors.New("tool reported no package path"))
	}
	env.Collector.IncArchiveWritten()
	if err := env.Host.SetOutput("vsix_path", resp.VSIXPath); err != nil {
		env.Host.Warning(fmt.Sprintf("set output vsix_path: %v", err))
	}

	rec := types.PackageRecord{
		Command:          "package",
		Publisher:        resp.Publisher,
		ExtensionID:      resp.ExtensionID,
		ExtensionVersion: resp.Version,
		VSIXPath:         resp.VSIXPath,
	}
	env.TrackPackage(c.Context, &rec, types.EventExtensionPackaged)
	resp.ArchivePath = rec.ArchivePath

	return r.Render(resp)
}

// packageResponse reads the tool's JSON result, falling back to the
// identity computed from the manifest and overrides.
func packageResponse(res *types.ToolResult, id identity) PackageResponse {
	obj := res.JSONObject()
	resp := PackageResponse{
		VSIXPath:    jsonString(obj, "path", "packaged"),
		Publisher:   firstNonEmpty(jsonString(obj, "publisher"), id.Publisher),
		ExtensionID: firstNonEmpty(jsonString(obj, "extensionID", "id"), id.ExtensionID),
		Version:     firstNonEmpty(jsonString(obj, "version"), id.Version),
	}
	if published, ok := obj["published"].(bool); ok {
		resp.Published = published
	}
	if resp.VSIXPath != "" {
		if abs, err := filepath.Abs(resp.VSIXPath); err == nil {
			resp.VSIXPath = abs
		}
	}
	return resp
}
