package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/cli/render"
)

// PatchResponse is the result of patch.
type PatchResponse struct {
	Output      string   `json:"output"`
	Publisher   string   `json:"publisher"`
	ExtensionID string   `json:"extension_id"`
	Version     string   `json:"version"`
	Files       int      `json:"files"`
	Changed     []string `json:"changed"`
}

// PatchCommand returns the patch command. It rewrites a package locally
// and never runs the packaging tool.
func PatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "patch",
		Usage:     "Rewrite a .vsix with manifest overrides and file edits",
		ArgsUsage: "<input.vsix|dir>",
		Flags: concatFlags(
			[]cli.Flag{
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output .vsix path", Required: true},
				&cli.StringSliceFlag{Name: "set-file", Usage: "Replace or add an entry: <archive-path>=<local-file>"},
				&cli.StringSliceFlag{Name: "remove-file", Usage: "Remove an entry"},
			},
			ManifestFlags(),
			EnvFlags(),
			[]cli.Flag{FormatFlag, NoColorFlag},
		),
		Action: patchAction,
	}
}

func patchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("input path required", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	env, err := NewEnv(c, "patch")
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = env.Close() }()

	src, err := openEdited(c.Args().First(), manifestOptions(c))
	if err != nil {
		return fail(env, err)
	}
	defer func() { _ = src.Close() }()

	if err := applyFileEdits(src, c.StringSlice("set-file"), c.StringSlice("remove-file")); err != nil {
		return fail(env, err)
	}

	out := c.String("output")
	if err := src.writer.WriteToFile(out); err != nil {
		env.Collector.IncArchiveWriteFailure()
		return fail(env, err)
	}
	env.Collector.IncArchiveWritten()
	env.Logger.Info("patched package", map[string]any{"output": out, "changed": len(src.editor.Modifications())})

	files, err := src.writer.Files()
	if err != nil {
		return fail(env, err)
	}
	resp := PatchResponse{
		Output:      out,
		Publisher:   src.id.Publisher,
		ExtensionID: src.id.ExtensionID,
		Version:     src.id.Version,
		Files:       len(files),
		Changed:     []string{},
	}
	for p := range src.editor.Modifications() {
		resp.Changed = append(resp.Changed, p)
	}
	slices.Sort(resp.Changed)
	return r.Render(resp)
}

// applyFileEdits records --set-file and --remove-file edits on src. Paths
// are validated as they are recorded.
func applyFileEdits(src *edited, sets, removes []string) error {
	for _, s := range sets {
		archivePath, localPath, ok := strings.Cut(s, "=")
		if !ok || archivePath == "" || localPath == "" {
			return fmt.Errorf("invalid --set-file %q: want <archive-path>=<local-file>", s)
		}
		content, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		if src.reader.Has(archivePath) {
			err = src.editor.SetFile(archivePath, content)
		} else {
			err = src.editor.AddFile(archivePath, content)
		}
		if err != nil {
			return err
		}
	}
	for _, p := range removes {
		src.editor.RemoveFile(p)
	}
	src.refresh()
	return nil
}
