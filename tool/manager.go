// Package tool resolves and runs the external packaging tool.
//
// Resolution is cache-first: an in-process cache, then PATH (for the
// embedded version), then the platform tool cache, then an install that
// populates the tool cache. Execution optionally captures the tool's JSON
// result through a jsonstream.Demux.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/vsixctl/jsonstream"
	"github.com/pithecene-io/vsixctl/metrics"
	"github.com/pithecene-io/vsixctl/platform"
	"github.com/pithecene-io/vsixctl/types"
)

// ErrInstallFailed is returned when no tool could be resolved.
var ErrInstallFailed = errors.New("failed to install")

// Version selectors with special meaning.
const (
	// VersionEmbedded uses the tool found on PATH.
	VersionEmbedded = "embedded"
	// VersionLatest installs the newest published version.
	VersionLatest = "latest"
)

// JSON capture flags appended to every capturing invocation.
const (
	flagJSON           = "--json"
	flagDebugLogStream = "--debug-log-stream"
	debugLogStreamDest = "stderr"
)

// Host is the platform surface the Manager needs.
type Host interface {
	Which(tool string) (string, error)
	FindCachedTool(tool, version string) string
	CacheDir(src, tool, version string) (string, error)
	DownloadTool(ctx context.Context, url string) (string, error)
	Exec(ctx context.Context, tool string, args []string, opts platform.ExecOptions) (int, error)
	Mask(s string) string
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
}

// Recorder receives a record of every completed invocation.
type Recorder interface {
	RecordInvocation(ctx context.Context, rec types.InvocationRecord) error
}

// Config configures a Manager.
type Config struct {
	// Name is the executable name. Defaults to types.DefaultToolName.
	Name string
	// Version selects the tool version: "" or "embedded" for PATH first,
	// "latest", or an exact version.
	Version string
	// Package is the npm package that provides Name.
	// Defaults to types.DefaultToolPackage.
	Package string
	// DownloadURL, when set, is fetched instead of installing from npm.
	// "{version}" is replaced with the requested version.
	DownloadURL string
	// NPM is the npm executable. Defaults to "npm".
	NPM string
	// Env is appended to the environment of every invocation.
	Env []string

	// Command names the vsixctl command for records.
	Command string
	// Platform names the host platform for records.
	Platform string

	Collector *metrics.Collector
	Recorder  Recorder
}

// ExecOptions configures one Execute call.
type ExecOptions struct {
	// CaptureJSON appends the JSON output flags and parses stdout.
	CaptureJSON bool
	Cwd         string
	Env         []string
	// Publisher and ExtensionID annotate the invocation record.
	Publisher   string
	ExtensionID string
}

// Manager resolves and runs the tool. It is safe for sequential use;
// Resolve is guarded so concurrent callers share one resolution.
type Manager struct {
	host Host
	cfg  Config

	mu   sync.Mutex
	path string
}

// NewManager returns a Manager bound to host.
func NewManager(host Host, cfg Config) *Manager {
	if cfg.Name == "" {
		cfg.Name = types.DefaultToolName
	}
	if cfg.Package == "" {
		cfg.Package = types.DefaultToolPackage
	}
	if cfg.NPM == "" {
		cfg.NPM = "npm"
	}
	return &Manager{host: host, cfg: cfg}
}

// Name returns the tool executable name.
func (m *Manager) Name() string { return m.cfg.Name }

// Version returns the version selector, "embedded" when unset.
func (m *Manager) Version() string {
	if m.cfg.Version == "" {
		return VersionEmbedded
	}
	return m.cfg.Version
}

// Resolve returns the tool executable path.
func (m *Manager) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path != "" {
		m.cfg.Collector.IncResolution(metrics.ResolvedMemory)
		return m.path, nil
	}

	version := m.cfg.Version
	if version == "" || version == VersionEmbedded {
		if p, err := m.host.Which(m.cfg.Name); err == nil {
			m.host.Debug(fmt.Sprintf("using %s from PATH: %s", m.cfg.Name, p))
			return m.remember(p, metrics.ResolvedPath), nil
		}
		version = VersionLatest
	}

	if dir := m.host.FindCachedTool(m.cfg.Name, version); dir != "" {
		if p, err := m.executableIn(dir); err == nil {
			return m.remember(p, metrics.ResolvedToolCache), nil
		}
		m.host.Debug(fmt.Sprintf("tool cache entry %s has no %s executable", dir, m.cfg.Name))
	}

	p, installErr := m.install(ctx, version)
	if installErr == nil {
		return m.remember(p, metrics.ResolvedInstall), nil
	}
	m.cfg.Collector.IncInstallFailure()
	m.host.Warning(fmt.Sprintf("install %s@%s: %v", m.cfg.Package, version, installErr))

	if p, err := m.host.Which(m.cfg.Name); err == nil {
		m.host.Warning(fmt.Sprintf("falling back to %s from PATH: %s", m.cfg.Name, p))
		return m.remember(p, metrics.ResolvedPath), nil
	}
	return "", fmt.Errorf("%w %s@%s: %w", ErrInstallFailed, m.cfg.Package, version, installErr)
}

func (m *Manager) remember(p, source string) string {
	m.path = p
	m.cfg.Collector.IncResolution(source)
	return p
}

// install acquires the tool, stores it in the tool cache and returns the
// cached executable.
func (m *Manager) install(ctx context.Context, version string) (string, error) {
	staging, err := os.MkdirTemp("", "vsixctl-install-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if m.cfg.DownloadURL != "" {
		err = m.download(ctx, version, staging)
	} else {
		err = m.npmInstall(ctx, version, staging)
	}
	if err != nil {
		return "", err
	}

	dir, err := m.host.CacheDir(staging, m.cfg.Name, version)
	if err != nil {
		return "", err
	}
	return m.executableIn(dir)
}

func (m *Manager) npmInstall(ctx context.Context, version, staging string) error {
	args := []string{"install", "--prefix", staging, "--no-audit", "--no-fund", m.cfg.Package + "@" + version}
	m.host.Info("[command]" + m.host.Mask(platform.FormatCommandLine(m.cfg.NPM, args)))

	logs := jsonstream.NewLineWriter(m.host.Debug)
	defer logs.Flush()
	code, err := m.host.Exec(ctx, m.cfg.NPM, args, platform.ExecOptions{Stdout: logs, Stderr: logs})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%s exited with code %d", m.cfg.NPM, code)
	}
	return nil
}

func (m *Manager) download(ctx context.Context, version, staging string) error {
	url := strings.ReplaceAll(m.cfg.DownloadURL, "{version}", version)
	file, err := m.host.DownloadTool(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(file) }()

	dst := filepath.Join(staging, executableName(m.cfg.Name))
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o755)
}

// executableIn finds the tool inside a tool cache entry.
func (m *Manager) executableIn(dir string) (string, error) {
	name := executableName(m.cfg.Name)
	candidates := []string{
		filepath.Join(dir, "node_modules", ".bin", name),
		filepath.Join(dir, "bin", name),
		filepath.Join(dir, name),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no %s executable in %s", m.cfg.Name, dir)
}

func executableName(name string) string {
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		return name + ".cmd"
	}
	return name
}

// Execute resolves the tool and runs it with args. A non-zero exit code is
// returned in the result; the error is set only when the tool could not be
// resolved or started.
func (m *Manager) Execute(ctx context.Context, args []string, opts ExecOptions) (*types.ToolResult, error) {
	path, err := m.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	args = slices.Clone(args)
	if opts.CaptureJSON {
		args = withJSONFlags(args)
	}

	ctx, span := startExecSpan(ctx, m.cfg.Name, args, opts.CaptureJSON)

	var (
		stdout, stderr bytes.Buffer
		demux          *jsonstream.Demux
		stdoutSink     io.Writer
	)
	stdoutLines := jsonstream.NewLineWriter(m.host.Info)
	stderrLines := jsonstream.NewLineWriter(m.host.Debug)
	if opts.CaptureJSON {
		demux = jsonstream.New(m.host.Info)
		stdoutSink = io.MultiWriter(&stdout, demux)
	} else {
		stdoutSink = io.MultiWriter(&stdout, stdoutLines)
	}

	m.host.Info("[command]" + m.host.Mask(platform.FormatCommandLine(path, args)))

	started := time.Now()
	code, err := m.host.Exec(ctx, path, args, platform.ExecOptions{
		Stdout: stdoutSink,
		Stderr: io.MultiWriter(&stderr, stderrLines),
		Env:    append(slices.Clone(m.cfg.Env), opts.Env...),
		Cwd:    opts.Cwd,
	})
	stdoutLines.Flush()
	stderrLines.Flush()
	duration := time.Since(started)
	if err != nil {
		m.cfg.Collector.IncToolStartError()
		endExecSpan(span, -1, err)
		return nil, err
	}
	m.cfg.Collector.IncToolInvocation(code, duration)

	masked := make([]string, len(args))
	for i, a := range args {
		masked[i] = m.host.Mask(a)
	}
	result := &types.ToolResult{
		Args:     masked,
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if demux != nil {
		if v, ok := demux.ParseJSON(); ok {
			result.JSON = v
		}
	}
	endExecSpan(span, code, nil)

	m.record(ctx, path, result, opts, started)
	return result, nil
}

func (m *Manager) record(ctx context.Context, path string, res *types.ToolResult, opts ExecOptions, started time.Time) {
	if m.cfg.Recorder == nil {
		return
	}
	err := m.cfg.Recorder.RecordInvocation(ctx, types.InvocationRecord{
		Command:      m.cfg.Command,
		Tool:         m.cfg.Name,
		ToolVersion:  m.cfg.Version,
		ToolPath:     path,
		Args:         res.Args,
		ExitCode:     res.ExitCode,
		JSONCaptured: res.HasJSON(),
		Duration:     res.Duration,
		StartedAt:    started.UTC(),
		Platform:     m.cfg.Platform,
		Publisher:    opts.Publisher,
		ExtensionID:  opts.ExtensionID,
	})
	if err != nil {
		m.host.Warning(fmt.Sprintf("record invocation: %v", err))
	}
}

// withJSONFlags appends --json and --debug-log-stream stderr unless the
// caller already passed them.
func withJSONFlags(args []string) []string {
	if !hasFlag(args, flagJSON) {
		args = append(args, flagJSON)
	}
	if !hasFlag(args, flagDebugLogStream) {
		args = append(args, flagDebugLogStream, debugLogStreamDest)
	}
	return args
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}
