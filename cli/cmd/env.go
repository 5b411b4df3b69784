package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/adapter"
	"github.com/pithecene-io/vsixctl/adapter/nats"
	"github.com/pithecene-io/vsixctl/adapter/redis"
	"github.com/pithecene-io/vsixctl/adapter/webhook"
	"github.com/pithecene-io/vsixctl/cli/config"
	"github.com/pithecene-io/vsixctl/ledger"
	"github.com/pithecene-io/vsixctl/log"
	"github.com/pithecene-io/vsixctl/metrics"
	"github.com/pithecene-io/vsixctl/platform"
	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/types"
)

// Env is the per-invocation wiring shared by commands: config, platform
// host, tool manager, ledger, notifications and metrics. Ledger and Adapter
// are nil when not configured.
type Env struct {
	Command   string
	Config    *config.Config
	Host      *platform.Host
	Logger    *log.Logger
	Collector *metrics.Collector
	Tools     *tool.Manager
	Ledger    *ledger.Ledger
	Adapter   adapter.Adapter

	ServiceURL string
	Token      string

	textfile string
}

// NewEnv builds the Env for command from flags and the config file.
// Flags always win over config values.
func NewEnv(c *cli.Context, command string) (*Env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(firstNonEmpty(flagString(c, "log-level"), cfg.Log.Level))
	if err != nil {
		return nil, err
	}

	platformName := firstNonEmpty(flagString(c, "platform"), cfg.Platform)
	if platformName == "" || platformName == "auto" {
		platformName = platform.Detect(nil)
	}

	logger := log.NewLoggerWithWriter(log.Meta{Command: command, Platform: platformName}, c.App.ErrWriter, level)

	// Logging commands must reach stdout on CI; locally stdout is
	// reserved for rendered results.
	var out io.Writer = c.App.Writer
	if platformName == platform.NameLocal {
		out = c.App.ErrWriter
	}
	host, err := platform.New(platformName, platform.Options{
		Logger:      logger,
		Out:         out,
		DotEnvFiles: []string{".env"},
		CacheRoot:   cfg.Tool.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	env := &Env{
		Command:    command,
		Config:     cfg,
		Host:       host,
		Logger:     logger,
		Collector:  metrics.NewCollector(command, host.Name()),
		ServiceURL: firstNonEmpty(flagString(c, "service-url"), cfg.ServiceURL),
		Token:      firstNonEmpty(flagString(c, "token"), cfg.Token, host.Variable("AZURE_DEVOPS_EXT_PAT")),
		textfile:   firstNonEmpty(flagString(c, "metrics-textfile"), cfg.Metrics.Textfile),
	}
	host.SetSecret(env.Token)

	env.Ledger, err = openLedger(c.Context, cfg.Ledger, env.Collector)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	env.Adapter, err = openAdapter(cfg.Adapter, env.Collector)
	if err != nil {
		env.closeLedger()
		return nil, fmt.Errorf("open adapter: %w", err)
	}

	toolCfg := tool.Config{
		Name:        cfg.Tool.Name,
		Version:     firstNonEmpty(flagString(c, "tool-version"), cfg.Tool.Version),
		Package:     cfg.Tool.NPMPackage,
		DownloadURL: cfg.Tool.DownloadURL,
		NPM:         cfg.Tool.NPM,
		Command:     command,
		Platform:    host.Name(),
		Collector:   env.Collector,
	}
	if env.Ledger != nil {
		toolCfg.Recorder = env.Ledger
	}
	env.Tools = tool.NewManager(host, toolCfg)
	return env, nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path := config.Discover(flagString(c, "config"), wd)
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, collector *metrics.Collector) (*ledger.Ledger, error) {
	lc := ledger.Config{Dataset: cfg.Dataset, Collector: collector}
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.LedgerFS:
		return ledger.NewFS(lc, cfg.Path)
	case config.LedgerS3:
		bucket, prefix := ledger.ParseS3Path(cfg.Path)
		return ledger.NewS3(ctx, lc, ledger.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

func openAdapter(cfg config.AdapterConfig, collector *metrics.Collector) (adapter.Adapter, error) {
	retries := func(def int) int {
		if cfg.Retries != nil {
			return *cfg.Retries
		}
		return def
	}

	var (
		inner adapter.Adapter
		err   error
	)
	switch cfg.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		inner, err = webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout.Duration,
			Retries: retries(webhook.DefaultRetries),
		})
	case config.AdapterRedis:
		inner, err = redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Mode:    cfg.Mode,
			Timeout: cfg.Timeout.Duration,
			Retries: retries(redis.DefaultRetries),
		})
	case config.AdapterNATS:
		inner, err = nats.New(nats.Config{
			URL:           cfg.URL,
			SubjectPrefix: cfg.Channel,
			Timeout:       cfg.Timeout.Duration,
			Retries:       retries(0),
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return adapter.NewInstrumented(inner, collector), nil
}

// TrackPackage records a produced package in the ledger, archives it when
// configured, and notifies the adapter. Failures are logged as warnings and
// never fail the command.
func (e *Env) TrackPackage(ctx context.Context, rec *types.PackageRecord, eventType string) {
	if rec.InvocationID == "" {
		rec.InvocationID = uuid.NewString()
	}
	if e.Ledger != nil {
		if e.Config.Ledger.ArchiveVSIX && rec.VSIXPath != "" {
			if err := e.Ledger.ArchiveVSIX(ctx, rec, rec.VSIXPath); err != nil {
				e.Host.Warning(fmt.Sprintf("archive %s: %v", rec.VSIXPath, err))
			}
		}
		if err := e.Ledger.RecordPackage(ctx, *rec); err != nil {
			e.Host.Warning(fmt.Sprintf("record package: %v", err))
		}
	}
	if e.Adapter != nil {
		event := adapter.NewEvent(eventType, *rec, e.Host.Name())
		if err := e.Adapter.Publish(ctx, event); err != nil {
			e.Host.Warning(fmt.Sprintf("notify %s: %v", eventType, err))
		}
	}
}

// Close flushes metrics and releases the ledger and adapter.
func (e *Env) Close() error {
	var errs []error
	if err := e.Collector.WriteTextfile(e.textfile); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	if e.Adapter != nil {
		if err := e.Adapter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.closeLedger(); err != nil {
		errs = append(errs, err)
	}
	_ = e.Logger.Sync()
	return errors.Join(errs...)
}

func (e *Env) closeLedger() error {
	if e.Ledger == nil {
		return nil
	}
	return e.Ledger.Close()
}

// flagString returns a flag value. Flags a command does not define read
// as "".
func flagString(c *cli.Context, name string) string {
	return c.String(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
