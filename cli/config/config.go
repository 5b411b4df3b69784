package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a vsixctl.yaml (or vsixctl.toml) file. Every value is optional
// and acts as a default for the matching flag; flags always win.
type Config struct {
	// Platform forces a host dialect: local, azure-pipelines,
	// github-actions or auto.
	Platform   string `yaml:"platform" toml:"platform"`
	ServiceURL string `yaml:"service_url" toml:"service_url"`
	Publisher  string `yaml:"publisher" toml:"publisher"`
	// Token is normally supplied as ${AZURE_DEVOPS_EXT_PAT}.
	Token string `yaml:"token" toml:"token"`

	Tool    ToolConfig    `yaml:"tool" toml:"tool"`
	Ledger  LedgerConfig  `yaml:"ledger" toml:"ledger"`
	Adapter AdapterConfig `yaml:"adapter" toml:"adapter"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// ToolConfig selects the packaging tool.
type ToolConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Version     string `yaml:"version" toml:"version"`
	NPMPackage  string `yaml:"npm_package" toml:"npm_package"`
	NPM         string `yaml:"npm" toml:"npm"`
	DownloadURL string `yaml:"download_url" toml:"download_url"`
	CacheDir    string `yaml:"cache_dir" toml:"cache_dir"`
}

// LedgerConfig configures invocation and package history.
// An empty Backend disables the ledger.
type LedgerConfig struct {
	Backend     string `yaml:"backend" toml:"backend"`
	Dataset     string `yaml:"dataset" toml:"dataset"`
	Path        string `yaml:"path" toml:"path"`
	Region      string `yaml:"region" toml:"region"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style" toml:"s3_path_style"`
	// ArchiveVSIX stores produced packages alongside the records.
	ArchiveVSIX bool `yaml:"archive_vsix" toml:"archive_vsix"`
}

// AdapterConfig configures downstream notifications.
// An empty Type disables notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type" toml:"type"`
	URL     string            `yaml:"url" toml:"url"`
	Channel string            `yaml:"channel,omitempty" toml:"channel"`
	Mode    string            `yaml:"mode,omitempty" toml:"mode"`
	Secret  string            `yaml:"secret,omitempty" toml:"secret"`
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers"`
	Timeout Duration          `yaml:"timeout,omitempty" toml:"timeout"`
	Retries *int              `yaml:"retries,omitempty" toml:"retries"`
}

// MetricsConfig configures the Prometheus textfile written at exit.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// LogConfig configures the local logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Ledger backends.
const (
	LedgerFS = "fs"
	LedgerS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
	AdapterNATS    = "nats"
)

// Validate checks enumerations and required pairs.
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case "":
	case LedgerFS, LedgerS3:
		if c.Ledger.Path == "" {
			errs = append(errs, fmt.Errorf("ledger.path is required for backend %q", c.Ledger.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend: unknown backend %q (want fs or s3)", c.Ledger.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis, AdapterNATS:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for type %q", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown type %q (want webhook, redis or nats)", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string. It serves the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// UnmarshalYAML parses a duration scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
