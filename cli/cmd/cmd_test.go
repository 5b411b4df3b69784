package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/types"
	"github.com/pithecene-io/vsixctl/vsix"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestCommandFlags_NoDuplicates(t *testing.T) {
	commands := []*cli.Command{
		PackageCommand(), PublishCommand(), ShowCommand(), ShareCommand(),
		UnshareCommand(), InstallCommand(), IsValidCommand(), InspectCommand(),
		PatchCommand(), HistoryCommand(), VersionCommand("", ""),
	}
	commands = append(commands, ToolCommand().Subcommands...)

	for _, cmd := range commands {
		t.Run(cmd.Name, func(t *testing.T) {
			seen := map[string]bool{}
			for _, f := range cmd.Flags {
				for _, name := range f.Names() {
					if seen[name] {
						t.Errorf("flag %q defined twice", name)
					}
					seen[name] = true
				}
			}
		})
	}
}

func TestTokenFlag_ReadsEnv(t *testing.T) {
	for _, f := range ServiceFlags() {
		sf, ok := f.(*cli.StringFlag)
		if !ok || sf.Name != "token" {
			continue
		}
		if len(sf.EnvVars) == 0 || sf.EnvVars[0] != "AZURE_DEVOPS_EXT_PAT" {
			t.Errorf("token EnvVars = %v", sf.EnvVars)
		}
		return
	}
	t.Fatal("ServiceFlags has no token flag")
}

func TestExitCodeFor(t *testing.T) {
	secErr := fmt.Errorf("write: %w", &vsix.SecurityError{Kind: vsix.ErrPathTraversal, Op: "addFile", Path: "../escape"})
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"plain", errors.New("boom"), exitFailure},
		{"security", secErr, exitSecurity},
		{"install failed", fmt.Errorf("resolve: %w", tool.ErrInstallFailed), exitInternal},
		{"start error", &toolStartError{err: errors.New("exec format error")}, exitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestInstallStatus(t *testing.T) {
	tests := []struct {
		code   int
		output string
		want   string
	}{
		{0, "", InstallInstalled},
		{1, "error: Extension is already installed in this organization", InstallAlreadyInstalled},
		{1, "TF1590010: extension already present", InstallAlreadyInstalled},
		{1, "access denied", InstallFailed},
		{2, "", InstallFailed},
	}
	for _, tt := range tests {
		if got := installStatus(tt.code, tt.output); got != tt.want {
			t.Errorf("installStatus(%d, %q) = %q, want %q", tt.code, tt.output, got, tt.want)
		}
	}
}

func TestSplitOrganizations(t *testing.T) {
	got := splitOrganizations([]string{"contoso, fabrikam", "northwind;adatum", " tailspin\n"})
	want := []string{"contoso", "fabrikam", "northwind", "adatum", "tailspin"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitOrganizations = %v, want %v", got, want)
	}
	if got := splitOrganizations([]string{" , "}); len(got) != 0 {
		t.Errorf("splitOrganizations(blank) = %v", got)
	}
}

func TestValidationStatus(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{map[string]any{"status": "Success"}, "success"},
		{map[string]any{"result": "pending"}, "pending"},
		{"Valid", "valid"},
		{nil, ""},
		{[]any{"x"}, ""},
	}
	for _, tt := range tests {
		if got := validationStatus(tt.in); got != tt.want {
			t.Errorf("validationStatus(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPackageResponse(t *testing.T) {
	id := identity{Publisher: "contoso", ExtensionID: "tasks", Version: "1.0.0"}

	res := &types.ToolResult{JSON: map[string]any{
		"path":        "out/contoso.tasks-1.0.1.vsix",
		"version":     "1.0.1",
		"extensionID": "tasks",
	}}
	resp := packageResponse(res, id)
	if !filepath.IsAbs(resp.VSIXPath) || !strings.HasSuffix(resp.VSIXPath, "contoso.tasks-1.0.1.vsix") {
		t.Errorf("VSIXPath = %q", resp.VSIXPath)
	}
	if resp.Version != "1.0.1" || resp.Publisher != "contoso" {
		t.Errorf("resp = %+v", resp)
	}

	empty := packageResponse(&types.ToolResult{}, id)
	if empty.VSIXPath != "" || empty.Version != "1.0.0" || empty.ExtensionID != "tasks" {
		t.Errorf("fallback resp = %+v", empty)
	}
}

func TestIdentityOf(t *testing.T) {
	m := &types.ExtensionManifest{Publisher: "contoso", ID: "tasks", Version: "1.0.0"}
	version := "2.0.0"
	id := identityOf(m, vsix.ManifestOverrides{Version: &version})
	if id != (identity{Publisher: "contoso", ExtensionID: "tasks", Version: "2.0.0"}) {
		t.Errorf("identityOf = %+v", id)
	}
}

func TestSetFileSpecRejected(t *testing.T) {
	root := writeSource(t)
	src, err := openEdited(root, vsix.Options{})
	if err != nil {
		t.Fatalf("openEdited: %v", err)
	}
	defer func() { _ = src.Close() }()

	if err := applyFileEdits(src, []string{"no-separator"}, nil); err == nil {
		t.Error("expected error for malformed --set-file")
	}
	local := filepath.Join(t.TempDir(), "x.txt")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = applyFileEdits(src, []string{"../outside.txt=" + local}, nil)
	if exitCodeFor(err) != exitSecurity {
		t.Errorf("traversal set-file: exit code %d (%v), want %d", exitCodeFor(err), err, exitSecurity)
	}
}

// --- Command integration ---

const manifestJSON = `{
  "manifestVersion": 1,
  "id": "tasks",
  "publisher": "contoso",
  "version": "1.0.0",
  "name": "Tasks",
  "files": [{"path": "buildTask"}],
  "contributions": [
    {"id": "build-task", "type": "ms.vss-distributed-task.task", "properties": {"name": "buildTask"}}
  ]
}`

const buildTaskJSON = `{
  "id": "11111111-2222-3333-4444-555555555555",
  "name": "BuildTask",
  "friendlyName": "Build Task",
  "version": {"Major": 1, "Minor": 0, "Patch": 0}
}`

// fakeTool answers the subcommands the commands use. Non-JSON lines go
// first, as the real tool does.
const fakeTool = `#!/bin/sh
echo "$@" >> "$FAKE_TOOL_LOG"
case "$2" in
create)
  echo "TFS Cross Platform Command Line Interface"
  echo '{"path":"'"$FAKE_VSIX"'","extensionID":"tasks","version":"1.0.0","publisher":"contoso"}'
  ;;
install)
  echo "error: extension already installed" >&2
  exit 1
  ;;
isvalid)
  echo '{"status":"pending"}'
  ;;
*)
  echo "unexpected $2" >&2
  exit 3
  ;;
esac
`

func writeSource(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"vss-extension.json":  manifestJSON,
		"buildTask/task.json": buildTaskJSON,
		"buildTask/index.js":  "console.log('build')",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// installFakeTool puts a fake tfx on PATH and returns its argument log.
func installFakeTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool is a shell script")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, types.DefaultToolName), []byte(fakeTool), 0o755); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "calls.log")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("FAKE_TOOL_LOG", logPath)
	t.Setenv("AZURE_DEVOPS_EXT_PAT", "")
	t.Setenv("VSIXCTL_OUTPUT", "")
	t.Chdir(t.TempDir())
	return logPath
}

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Name:           "vsixctl",
		Writer:         &stdout,
		ErrWriter:      &stderr,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			PackageCommand(), InstallCommand(), IsValidCommand(),
			InspectCommand(), PatchCommand(), HistoryCommand(),
			ToolCommand(), VersionCommand("", "abc123"),
		},
	}
	err := app.Run(append([]string{"vsixctl"}, args...))
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

func TestPackageCommand(t *testing.T) {
	calls := installFakeTool(t)
	root := writeSource(t)
	vsixPath := filepath.Join(t.TempDir(), "contoso.tasks-1.0.0.vsix")
	t.Setenv("FAKE_VSIX", vsixPath)

	stdout, stderr, err := runApp(t, "package", "--platform", "local", "--format", "json", "--root", root)
	if err != nil {
		t.Fatalf("package: %v\nstderr:\n%s", err, stderr)
	}

	var resp PackageResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if resp.VSIXPath != vsixPath || resp.Publisher != "contoso" || resp.ExtensionID != "tasks" {
		t.Errorf("resp = %+v", resp)
	}

	logged, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	line := string(logged)
	for _, want := range []string{"extension create", "--root " + root, "--json"} {
		if !strings.Contains(line, want) {
			t.Errorf("tool args %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "--overrides-file") {
		t.Errorf("no overrides expected: %q", line)
	}
	if !strings.Contains(stderr, "vsix_path="+vsixPath) {
		t.Errorf("stderr missing vsix_path output:\n%s", stderr)
	}
}

func TestPackageCommand_OverridesFile(t *testing.T) {
	calls := installFakeTool(t)
	root := writeSource(t)
	t.Setenv("FAKE_VSIX", filepath.Join(t.TempDir(), "x.vsix"))

	_, stderr, err := runApp(t, "package", "--platform", "local", "--format", "json",
		"--root", root, "--extension-version", "2.0.0")
	if err != nil {
		t.Fatalf("package: %v\nstderr:\n%s", err, stderr)
	}
	logged, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logged), "--overrides-file") {
		t.Errorf("expected --overrides-file in %q", logged)
	}
}

func TestInstallCommand_AlreadyInstalledSucceeds(t *testing.T) {
	calls := installFakeTool(t)

	stdout, stderr, err := runApp(t, "install", "--platform", "local", "--format", "json",
		"--publisher", "contoso", "--extension-id", "tasks",
		"--organizations", "alpha,beta", "--token", "s3cret")
	if err != nil {
		t.Fatalf("install: %v\nstderr:\n%s", err, stderr)
	}

	var results []InstallResult
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(results) != 2 || results[0].Organization != "alpha" || results[1].Status != InstallAlreadyInstalled {
		t.Errorf("results = %+v", results)
	}

	logged, err := os.ReadFile(calls)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logged), "--service-url https://dev.azure.com/beta") {
		t.Errorf("tool args = %q", logged)
	}
	if strings.Contains(stderr, "s3cret") {
		t.Errorf("token leaked into logs:\n%s", stderr)
	}
}

func TestIsValidCommand_NotValidExitsOne(t *testing.T) {
	installFakeTool(t)

	stdout, _, err := runApp(t, "is-valid", "--platform", "local", "--format", "json",
		"--publisher", "contoso", "--extension-id", "tasks")
	if code := exitCode(err); code != exitFailure {
		t.Fatalf("exit code = %d (%v), want %d", code, err, exitFailure)
	}
	var resp ValidityResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if resp.Status != "pending" || resp.Valid {
		t.Errorf("resp = %+v", resp)
	}
}

func TestToolCommand_ResolveMissingTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH layout differs")
	}
	t.Setenv("PATH", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	_, _, err := runApp(t, "tool", "resolve", "--platform", "local", "--tool-version", "embedded")
	if code := exitCode(err); code != exitInternal {
		t.Errorf("exit code = %d (%v), want %d", code, err, exitInternal)
	}
}

func TestInspectCommand(t *testing.T) {
	root := writeSource(t)

	stdout, _, err := runApp(t, "inspect", "--format", "json", root)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var summary map[string]any
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if summary["publisher"] != "contoso" || summary["valid"] != true {
		t.Errorf("summary = %v", summary)
	}
}

func TestInspectCommand_MissingPath(t *testing.T) {
	_, _, err := runApp(t, "inspect", "--format", "json", filepath.Join(t.TempDir(), "missing.vsix"))
	if code := exitCode(err); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestPatchCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	root := writeSource(t)
	readme := filepath.Join(t.TempDir(), "README.md")
	if err := os.WriteFile(readme, []byte("# Tasks"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "patched.vsix")

	stdout, stderr, err := runApp(t, "patch", "--platform", "local", "--format", "json",
		"--output", out,
		"--extension-version", "3.1.0",
		"--set-file", "README.md="+readme,
		"--remove-file", "buildTask/index.js",
		root)
	if err != nil {
		t.Fatalf("patch: %v\nstderr:\n%s", err, stderr)
	}

	var resp PatchResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if resp.Version != "3.1.0" || len(resp.Changed) != 2 {
		t.Errorf("resp = %+v", resp)
	}

	r, err := vsix.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer func() { _ = r.Close() }()
	m, err := r.ReadExtensionManifest()
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "3.1.0" {
		t.Errorf("manifest version = %q", m.Version)
	}
	if !r.Has("README.md") || r.Has("buildTask/index.js") {
		t.Error("file edits not applied")
	}
}

func TestPatchCommand_TraversalExitsSecurity(t *testing.T) {
	t.Chdir(t.TempDir())
	root := writeSource(t)
	local := filepath.Join(t.TempDir(), "evil")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "patched.vsix")

	_, _, err := runApp(t, "patch", "--platform", "local", "--output", out,
		"--set-file", "../../evil="+local, root)
	if code := exitCode(err); code != exitSecurity {
		t.Errorf("exit code = %d (%v), want %d", code, err, exitSecurity)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("output written despite rejected path")
	}
}

func TestHistoryCommand_NoLedger(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := runApp(t, "history", "--format", "json")
	if code := exitCode(err); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestHistoryCommand_FSLedger(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := "ledger:\n  backend: fs\n  path: " + filepath.Join(dir, "ledger") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "vsixctl.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := runApp(t, "history", "--format", "json", "--stats")
	if err != nil {
		t.Fatalf("history: %v\nstderr:\n%s", err, stderr)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if stats["total"] != float64(0) {
		t.Errorf("stats = %v", stats)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version != types.Version || resp.Commit != "abc123" {
		t.Errorf("resp = %+v", resp)
	}

	_, _, err = runApp(t, "version", "--tui")
	if exitCode(err) != exitFailure {
		t.Errorf("--tui exit code = %d", exitCode(err))
	}
}
