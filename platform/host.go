// Package platform adapts vsixctl to the CI system it runs under.
//
// A Host exposes inputs and variables, secret masking, logging, file
// matching, subprocess execution and a persistent tool cache. Three
// dialects exist: Azure Pipelines (##vso logging commands), GitHub Actions
// (::workflow commands) and a local shell (structured zap logging).
package platform

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/pithecene-io/vsixctl/log"
)

// Platform names.
const (
	NameLocal          = "local"
	NameAzurePipelines = "azure-pipelines"
	NameGitHubActions  = "github-actions"
)

// Options configures a Host. Zero values select process defaults.
type Options struct {
	// Logger receives structured entries. Only the local dialect writes
	// log lines through it; CI dialects print logging commands to Out.
	Logger *log.Logger
	// Out receives CI logging commands. Defaults to os.Stdout.
	Out io.Writer
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Inputs are explicit inputs that win over the environment.
	Inputs map[string]string
	// DotEnvFiles are loaded into the lookup table without touching the
	// process environment. Missing files are ignored.
	DotEnvFiles []string
	// CacheRoot is the tool cache directory. Defaults per dialect.
	CacheRoot string
	// HTTPClient is used by DownloadTool.
	HTTPClient *http.Client
}

// Host is a platform adapter. The exported methods are safe for
// sequential use; the secret list is guarded for concurrent masking.
type Host struct {
	d         dialect
	logger    *log.Logger
	out       io.Writer
	lookupEnv func(string) (string, bool)
	inputs    map[string]string
	dotenv    map[string]string
	cacheRoot string
	client    *http.Client

	mu      sync.RWMutex
	secrets []string
}

// NewLocal returns a Host for interactive and generic CI shells.
func NewLocal(opts Options) (*Host, error) {
	return newHost(localDialect{}, opts)
}

// NewAzurePipelines returns a Host that speaks Azure Pipelines logging
// commands.
func NewAzurePipelines(opts Options) (*Host, error) {
	return newHost(azureDialect{}, opts)
}

// NewGitHubActions returns a Host that speaks GitHub Actions workflow
// commands.
func NewGitHubActions(opts Options) (*Host, error) {
	return newHost(githubDialect{}, opts)
}

// New returns the Host for a platform name. An empty name or "auto" detects
// the platform from the environment.
func New(name string, opts Options) (*Host, error) {
	if name == "" || name == "auto" {
		name = Detect(opts.LookupEnv)
	}
	switch name {
	case NameLocal:
		return NewLocal(opts)
	case NameAzurePipelines:
		return NewAzurePipelines(opts)
	case NameGitHubActions:
		return NewGitHubActions(opts)
	default:
		return nil, fmt.Errorf("unknown platform %q (valid: auto, %s, %s, %s)", name, NameLocal, NameAzurePipelines, NameGitHubActions)
	}
}

// Detect names the CI platform indicated by the environment.
func Detect(lookupEnv func(string) (string, bool)) string {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if v, _ := lookupEnv("TF_BUILD"); strings.EqualFold(v, "true") {
		return NameAzurePipelines
	}
	if v, _ := lookupEnv("GITHUB_ACTIONS"); strings.EqualFold(v, "true") {
		return NameGitHubActions
	}
	return NameLocal
}

func newHost(d dialect, opts Options) (*Host, error) {
	h := &Host{
		d:         d,
		logger:    opts.Logger,
		out:       opts.Out,
		lookupEnv: opts.LookupEnv,
		inputs:    make(map[string]string, len(opts.Inputs)),
		dotenv:    make(map[string]string),
		cacheRoot: opts.CacheRoot,
		client:    opts.HTTPClient,
	}
	if h.out == nil {
		h.out = os.Stdout
	}
	if h.lookupEnv == nil {
		h.lookupEnv = os.LookupEnv
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	for k, v := range opts.Inputs {
		h.inputs[normalizeInputName(k)] = v
	}
	for _, f := range opts.DotEnvFiles {
		vals, err := godotenv.Read(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		for k, v := range vals {
			h.dotenv[k] = v
		}
	}
	if h.cacheRoot == "" {
		root, err := d.defaultCacheRoot(h.Variable)
		if err != nil {
			return nil, err
		}
		h.cacheRoot = root
	}
	return h, nil
}

// Name returns the platform name.
func (h *Host) Name() string { return h.d.name() }

// Input returns a named input. Explicit inputs win, then the dialect's
// environment convention.
func (h *Host) Input(name string) string {
	if v, ok := h.inputs[normalizeInputName(name)]; ok {
		return v
	}
	return strings.TrimSpace(h.Variable(h.d.inputKey(name)))
}

// RequiredInput is Input that fails on an empty value.
func (h *Host) RequiredInput(name string) (string, error) {
	v := h.Input(name)
	if v == "" {
		return "", fmt.Errorf("input required and not supplied: %s", name)
	}
	return v, nil
}

// BoolInput parses an input as a boolean. Empty or unparsable is false.
func (h *Host) BoolInput(name string) bool {
	b, err := strconv.ParseBool(h.Input(name))
	return err == nil && b
}

// DelimitedInput splits an input on sep and drops empty items.
func (h *Host) DelimitedInput(name, sep string) []string {
	var out []string
	for _, part := range strings.Split(h.Input(name), sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Variable returns an environment variable, consulting loaded .env files
// when the process environment does not have it.
func (h *Host) Variable(name string) string {
	if v, ok := h.lookupEnv(name); ok {
		return v
	}
	return h.dotenv[name]
}

// SetSecret registers a value to be masked in every log line and announces
// it to the CI system.
func (h *Host) SetSecret(value string) {
	if value == "" {
		return
	}
	h.mu.Lock()
	h.secrets = append(h.secrets, value)
	sort.Slice(h.secrets, func(i, j int) bool { return len(h.secrets[i]) > len(h.secrets[j]) })
	h.mu.Unlock()
	h.d.setSecret(h.out, value)
}

// Mask replaces every registered secret in s with "***".
func (h *Host) Mask(s string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

// SetOutput publishes a step output.
func (h *Host) SetOutput(name, value string) error {
	return h.d.setOutput(h, name, value)
}

// Debug logs at debug level.
func (h *Host) Debug(msg string) { h.logAt(LevelDebug, msg) }

// Info logs at info level.
func (h *Host) Info(msg string) { h.logAt(LevelInfo, msg) }

// Warning logs at warning level.
func (h *Host) Warning(msg string) { h.logAt(LevelWarning, msg) }

// Error logs at error level.
func (h *Host) Error(msg string) { h.logAt(LevelError, msg) }

func (h *Host) logAt(level Level, msg string) {
	h.d.log(h, level, h.Mask(msg))
}

// CacheRoot returns the tool cache directory.
func (h *Host) CacheRoot() string { return h.cacheRoot }

// Logger returns the structured logger, which may be nil.
func (h *Host) Logger() *log.Logger { return h.logger }

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func normalizeInputName(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(name)))
}

func userCacheRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate user cache dir: %w", err)
	}
	return filepath.Join(dir, "vsixctl", "tools"), nil
}
