package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/types"
)

// PublishCommand returns the publish command.
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a .vsix file or an extension source directory",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{Name: "vsix", Usage: "Package to publish"},
				&cli.StringFlag{Name: "root", Usage: "Extension source directory to package and publish"},
				&cli.StringSliceFlag{Name: "share-with", Usage: "Organizations to share a private extension with"},
				&cli.BoolFlag{Name: "no-wait-validation", Usage: "Do not wait for marketplace validation"},
				&cli.BoolFlag{Name: "bypass-validation", Usage: "Skip the tool's manifest validation"},
			},
			ManifestFlags(),
			ServiceFlags(),
			EnvFlags(),
			[]cli.Flag{FormatFlag, NoColorFlag},
		),
		Action: publishAction,
	}
}

func publishAction(c *cli.Context) error {
	vsixPath, root := c.String("vsix"), c.String("root")
	if (vsixPath == "") == (root == "") {
		return cli.Exit("exactly one of --vsix or --root is required", exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "publish")
	if err != nil {
		return fail(nil, err)
	}
	defer func() { _ = env.Close() }()

	src, err := openEdited(firstNonEmpty(vsixPath, root), manifestOptions(c))
	if err != nil {
		return fail(env, err)
	}
	defer func() { _ = src.Close() }()

	args := []string{"extension", "publish"}
	if vsixPath != "" {
		// A package with pending edits is rewritten before upload.
		if src.changed() {
			dir, err := os.MkdirTemp("", "vsixctl-publish-*")
			if err != nil {
				return fail(env, err)
			}
			defer func() { _ = os.RemoveAll(dir) }()
			out := filepath.Join(dir, filepath.Base(vsixPath))
			if err := src.writer.WriteToFile(out); err != nil {
				env.Collector.IncArchiveWriteFailure()
				return fail(env, err)
			}
			env.Collector.IncArchiveWritten()
			vsixPath = out
		}
		args = append(args, "--vsix", vsixPath)
	} else {
		stage, err := src.stageRoot()
		if err != nil {
			return fail(env, err)
		}
		args = append(args, "--root", stage)
		overrides, err := src.writer.OverridesPath()
		if err != nil {
			return fail(env, err)
		}
		if overrides != "" {
			args = append(args, "--overrides-file", overrides)
		}
	}
	args = serviceArgs(env, args)
	if orgs := c.StringSlice("share-with"); len(orgs) > 0 {
		args = append(args, "--share-with")
		args = append(args, orgs...)
	}
	if c.Bool("no-wait-validation") {
		args = append(args, "--no-wait-validation")
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
		resp.VSIXPath = vsixPath
	}
	if !res.HasJSON() {
		return fail(env, errors.New("tool reported no publish result"))
	}
	if _, ok := res.JSONObject()["published"]; !ok {
		resp.Published = true
	}

	rec := types.PackageRecord{
		Command:          "publish",
		Publisher:        resp.Publisher,
		ExtensionID:      resp.ExtensionID,
		ExtensionVersion: resp.Version,
		VSIXPath:         resp.VSIXPath,
		Published:        resp.Published,
	}
	env.TrackPackage(c.Context, &rec, types.EventExtensionPublished)
	resp.ArchivePath = rec.ArchivePath

	return r.Render(resp)
}
