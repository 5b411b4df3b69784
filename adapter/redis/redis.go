// Package redis publishes extension events to Redis, either with PUBLISH on
// a pub/sub channel or XADD onto a stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/vsixctl/adapter"
	"github.com/pithecene-io/vsixctl/types"
)

// DefaultChannel is the default pub/sub channel and stream key.
const DefaultChannel = "vsixctl:extension_events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Delivery modes.
const (
	ModePubSub = "pubsub"
	ModeStream = "stream"
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel or stream key.
	Channel string
	// Mode is ModePubSub (default) or ModeStream.
	Mode string
	// MaxLen caps a stream (approximate trim). Zero leaves it unbounded.
	MaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
}

// Adapter publishes extension events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The URL is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePubSub
	case ModePubSub, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q", cfg.Mode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as JSON.
func (a *Adapter) Publish(ctx context.Context, event *types.ExtensionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		if a.config.Mode == ModeStream {
			return a.client.XAdd(publishCtx, &goredis.XAddArgs{
				Stream: a.config.Channel,
				MaxLen: a.config.MaxLen,
				Approx: a.config.MaxLen > 0,
				Values: []string{"event_type", event.EventType, "payload", string(body)},
			}).Err()
		}
		return a.client.Publish(publishCtx, a.config.Channel, body).Err()
	})
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
