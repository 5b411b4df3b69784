package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/types"
	"github.com/pithecene-io/vsixctl/vsix"
)

// manifestOptions collects ManifestFlags.
func manifestOptions(c *cli.Context) vsix.Options {
	return vsix.Options{
		Publisher:          c.String("publisher"),
		ExtensionID:        c.String("extension-id"),
		Version:            c.String("extension-version"),
		Name:               c.String("extension-name"),
		Description:        c.String("extension-description"),
		Visibility:         c.String("extension-visibility"),
		Pricing:            c.String("extension-pricing"),
		UpdateTasksVersion: c.Bool("update-tasks-version"),
		UpdateTasksID:      c.Bool("update-tasks-id"),
	}
}

// identity is the extension identity after overrides.
type identity struct {
	Publisher   string
	ExtensionID string
	Version     string
}

func identityOf(m *types.ExtensionManifest, o vsix.ManifestOverrides) identity {
	id := identity{Publisher: m.Publisher, ExtensionID: m.ID, Version: m.Version}
	if o.Publisher != nil {
		id.Publisher = *o.Publisher
	}
	if o.ExtensionID != nil {
		id.ExtensionID = *o.ExtensionID
	}
	if o.Version != nil {
		id.Version = *o.Version
	}
	return id
}

// edited is a package opened for editing with options applied.
type edited struct {
	reader *vsix.Reader
	editor *vsix.Editor
	writer *vsix.Writer
	id     identity
}

// openEdited opens a .vsix file or a source directory and applies opts.
func openEdited(path string, opts vsix.Options) (*edited, error) {
	r, err := vsix.OpenAny(path)
	if err != nil {
		return nil, err
	}
	ed := vsix.NewEditor(r)
	if err := ed.ApplyOptions(opts); err != nil {
		_ = r.Close()
		return nil, err
	}
	m, err := r.ReadExtensionManifest()
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &edited{
		reader: r,
		editor: ed,
		writer: ed.ToWriter(),
		id:     identityOf(m, ed.Overrides()),
	}, nil
}

// changed reports whether any file content would differ from the source.
func (e *edited) changed() bool {
	return len(e.editor.Modifications()) > 0 || len(e.editor.TaskOverrides()) > 0 || !e.editor.Overrides().IsEmpty()
}

// stageRoot returns a directory the tool can package from: the source
// itself when only manifest overrides apply (those travel in the
// overrides file), otherwise a temp tree owned by the writer.
func (e *edited) stageRoot() (string, error) {
	if len(e.editor.Modifications()) == 0 && len(e.editor.TaskOverrides()) == 0 {
		return e.reader.Source(), nil
	}
	return e.writer.WriteToFilesystem("")
}

// refresh rebuilds the writer after further editor changes.
func (e *edited) refresh() {
	_ = e.writer.Close()
	e.writer = e.editor.ToWriter()
}

func (e *edited) Close() error {
	return errors.Join(e.writer.Close(), e.reader.Close())
}

// serviceArgs appends the service URL and PAT authentication.
func serviceArgs(env *Env, args []string) []string {
	if env.ServiceURL != "" {
		args = append(args, "--service-url", env.ServiceURL)
	}
	if env.Token != "" {
		args = append(args, "--auth-type", "pat", "--token", env.Token)
	}
	return args
}

// runTool executes the packaging tool, separating start failures from
// resolution failures for exit code classification.
func runTool(ctx context.Context, env *Env, args []string, opts tool.ExecOptions) (*types.ToolResult, error) {
	res, err := env.Tools.Execute(ctx, args, opts)
	if err != nil {
		if errors.Is(err, tool.ErrInstallFailed) {
			return nil, err
		}
		return nil, &toolStartError{err: err}
	}
	return res, nil
}

// toolFailed describes a non-zero exit.
func toolFailed(args []string, res *types.ToolResult) error {
	sub := args
	if len(sub) > 2 {
		sub = sub[:2]
	}
	return fmt.Errorf("%v exited with code %d", sub, res.ExitCode)
}

// lookupIdentity resolves --publisher/--extension-id, falling back to the
// manifest of --vsix.
func lookupIdentity(c *cli.Context, env *Env) (identity, error) {
	id := identity{
		Publisher:   firstNonEmpty(c.String("publisher"), env.Config.Publisher),
		ExtensionID: c.String("extension-id"),
		Version:     c.String("extension-version"),
	}
	if p := c.String("vsix"); p != "" {
		r, err := vsix.Open(p)
		if err != nil {
			return identity{}, err
		}
		defer func() { _ = r.Close() }()
		m, err := r.ReadExtensionManifest()
		if err != nil {
			return identity{}, err
		}
		id.Publisher = firstNonEmpty(c.String("publisher"), m.Publisher)
		id.ExtensionID = firstNonEmpty(id.ExtensionID, m.ID)
		id.Version = firstNonEmpty(id.Version, m.Version)
	}
	if id.Publisher == "" || id.ExtensionID == "" {
		return identity{}, errors.New("--publisher and --extension-id (or --vsix) are required")
	}
	return id, nil
}

func jsonString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
