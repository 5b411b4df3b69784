// Package adapter defines the boundary for notifying downstream systems
// about packaged and published extensions.
//
// Adapters are optional. A failed publish is reported to the caller, which
// logs it; it never changes the outcome of the command that produced the
// event.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/vsixctl/metrics"
	"github.com/pithecene-io/vsixctl/types"
)

// Adapter publishes extension events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *types.ExtensionEvent) error

	// Close releases adapter resources.
	Close() error
}

// NewEvent builds an event stamped with the current contract version and
// time.
func NewEvent(eventType string, rec types.PackageRecord, platform string) *types.ExtensionEvent {
	return &types.ExtensionEvent{
		ContractVersion:  types.EventContractVersion,
		EventType:        eventType,
		InvocationID:     rec.InvocationID,
		Publisher:        rec.Publisher,
		ExtensionID:      rec.ExtensionID,
		ExtensionVersion: rec.ExtensionVersion,
		VSIXPath:         rec.VSIXPath,
		ArchivePath:      rec.ArchivePath,
		SHA256:           rec.SHA256,
		Platform:         platform,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }

func (e *Permanent) Unwrap() error { return e.Err }

// Retry calls fn up to 1+retries times with exponential backoff starting at
// 500ms. It stops early on success, context cancellation or a *Permanent
// error.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Instrumented wraps an Adapter and counts publish outcomes.
type Instrumented struct {
	inner     Adapter
	collector *metrics.Collector
}

// NewInstrumented wraps inner with metrics.
func NewInstrumented(inner Adapter, collector *metrics.Collector) *Instrumented {
	return &Instrumented{inner: inner, collector: collector}
}

// Publish delegates to the inner adapter and records the outcome.
func (a *Instrumented) Publish(ctx context.Context, event *types.ExtensionEvent) error {
	err := a.inner.Publish(ctx, event)
	a.collector.IncAdapterPublish(err == nil)
	return err
}

// Close delegates to the inner adapter.
func (a *Instrumented) Close() error {
	return a.inner.Close()
}

var _ Adapter = (*Instrumented)(nil)
