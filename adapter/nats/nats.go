// Package nats publishes extension events to a NATS subject.
//
// The subject is "<prefix>.<event_type>.<publisher>.<extension_id>" so
// consumers can subscribe with wildcards per event type or extension.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pithecene-io/vsixctl/adapter"
	"github.com/pithecene-io/vsixctl/types"
)

// DefaultSubjectPrefix is the default subject prefix.
const DefaultSubjectPrefix = "vsixctl.extensions"

// DefaultTimeout bounds the flush after each publish.
const DefaultTimeout = 5 * time.Second

// MsgIDHeader carries a stable ID so JetStream can drop duplicates.
const MsgIDHeader = "Nats-Msg-Id"

// Config configures the NATS adapter.
type Config struct {
	// URL is the NATS server URL (required).
	URL string
	// SubjectPrefix defaults to DefaultSubjectPrefix.
	SubjectPrefix string
	// Timeout bounds the server round trip (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
}

// conn is the subset of *nats.Conn the adapter uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Adapter publishes extension events to NATS.
type Adapter struct {
	config Config
	nc     conn
}

// New connects to NATS.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats adapter requires a URL")
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("vsixctl"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(3),
		nats.ReconnectWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("nats adapter: connect: %w", err)
	}
	return &Adapter{config: cfg, nc: nc}, nil
}

func newWithConn(cfg Config, nc conn) (*Adapter, error) {
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &Adapter{config: cfg, nc: nc}, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return nil
}

// Subject returns the subject an event is published on.
func (a *Adapter) Subject(event *types.ExtensionEvent) string {
	return strings.Join([]string{
		a.config.SubjectPrefix,
		subjectToken(event.EventType),
		subjectToken(event.Publisher),
		subjectToken(event.ExtensionID),
	}, ".")
}

// subjectToken makes s a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publish sends the event and waits for the server to acknowledge the flush.
func (a *Adapter) Publish(ctx context.Context, event *types.ExtensionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}

	msg := nats.NewMsg(a.Subject(event))
	msg.Data = body
	if event.InvocationID != "" {
		msg.Header.Set(MsgIDHeader, event.InvocationID+":"+event.EventType)
	}

	return adapter.Retry(ctx, "nats", a.config.Retries, func(ctx context.Context) error {
		if err := a.nc.PublishMsg(msg); err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubject) {
				return &adapter.Permanent{Err: err}
			}
			return err
		}
		timeout := a.config.Timeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = min(timeout, time.Until(deadline))
		}
		return a.nc.FlushTimeout(timeout)
	})
}

// Close drops the connection.
func (a *Adapter) Close() error {
	a.nc.Close()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
