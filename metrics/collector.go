// Package metrics collects per-invocation counters for vsixctl.
//
// The Collector keeps plain counters for Snapshot and mirrors them into a
// private Prometheus registry, which can be written to a node-exporter
// textfile at the end of a CI step. All increment methods are nil-receiver
// safe so instrumented code never checks for a collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric.
const Namespace = "vsixctl"

// Resolution sources reported by IncResolution.
const (
	ResolvedMemory    = "memory"
	ResolvedPath      = "path"
	ResolvedToolCache = "tool_cache"
	ResolvedInstall   = "install"
)

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Tool execution
	ToolInvocations int64
	ToolFailures    int64 // non-zero exit
	ToolStartErrors int64
	ResolvedBy      map[string]int64
	InstallFailures int64

	// Archives
	ArchivesWritten      int64
	ArchiveWriteFailures int64
	SecurityRejections   int64

	// Ledger and adapter
	LedgerWriteSuccess    int64
	LedgerWriteFailure    int64
	AdapterPublishSuccess int64
	AdapterPublishFailure int64

	// Dimensions
	Command  string
	Platform string
}

// Collector accumulates metrics for one vsixctl invocation.
type Collector struct {
	mu sync.Mutex

	toolInvocations int64
	toolFailures    int64
	toolStartErrors int64
	resolvedBy      map[string]int64
	installFailures int64

	archivesWritten      int64
	archiveWriteFailures int64
	securityRejections   int64

	ledgerWriteSuccess    int64
	ledgerWriteFailure    int64
	adapterPublishSuccess int64
	adapterPublishFailure int64

	command  string
	platform string

	registry       *prometheus.Registry
	toolRuns       *prometheus.CounterVec
	toolDuration   prometheus.Histogram
	resolutions    *prometheus.CounterVec
	installs       prometheus.Counter
	archiveWrites  *prometheus.CounterVec
	security       prometheus.Counter
	ledgerWrites   *prometheus.CounterVec
	adapterPublish *prometheus.CounterVec
}

// NewCollector creates a Collector labelled with the command and platform.
func NewCollector(command, platform string) *Collector {
	labels := prometheus.Labels{"command": command, "platform": platform}
	c := &Collector{
		resolvedBy: make(map[string]int64),
		command:    command,
		platform:   platform,
		registry:   prometheus.NewRegistry(),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "tool_invocations_total",
			Help:        "External tool invocations by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		toolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "tool_duration_seconds",
			Help:        "Wall time of external tool invocations.",
			ConstLabels: labels,
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "tool_resolutions_total",
			Help:        "Tool path resolutions by source.",
			ConstLabels: labels,
		}, []string{"source"}),
		installs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "tool_install_failures_total",
			Help:        "Failed tool installs.",
			ConstLabels: labels,
		}),
		archiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "archive_writes_total",
			Help:        "VSIX archive writes by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		security: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "security_rejections_total",
			Help:        "Archive paths rejected by path validation.",
			ConstLabels: labels,
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "ledger_writes_total",
			Help:        "Ledger record writes by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		adapterPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "adapter_publishes_total",
			Help:        "Downstream event publishes by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.toolRuns, c.toolDuration, c.resolutions, c.installs,
		c.archiveWrites, c.security, c.ledgerWrites, c.adapterPublish,
	)
	return c
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// --- Tool execution ---

// IncToolInvocation records a completed tool run with its exit code.
func (c *Collector) IncToolInvocation(exitCode int, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolInvocations++
	if exitCode != 0 {
		c.toolFailures++
	}
	c.mu.Unlock()
	c.toolRuns.WithLabelValues(outcome(exitCode == 0)).Inc()
	c.toolDuration.Observe(d.Seconds())
}

// IncToolStartError records a tool that could not be started.
func (c *Collector) IncToolStartError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.toolStartErrors++
	c.mu.Unlock()
	c.toolRuns.WithLabelValues("start_error").Inc()
}

// IncResolution records where a tool path came from.
func (c *Collector) IncResolution(source string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolvedBy[source]++
	c.mu.Unlock()
	c.resolutions.WithLabelValues(source).Inc()
}

// IncInstallFailure records a failed tool install.
func (c *Collector) IncInstallFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.installFailures++
	c.mu.Unlock()
	c.installs.Inc()
}

// --- Archives ---

// IncArchiveWritten records a successful archive write.
func (c *Collector) IncArchiveWritten() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archivesWritten++
	c.mu.Unlock()
	c.archiveWrites.WithLabelValues(outcome(true)).Inc()
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteFailures++
	c.mu.Unlock()
	c.archiveWrites.WithLabelValues(outcome(false)).Inc()
}

// IncSecurityRejection records a rejected archive path.
func (c *Collector) IncSecurityRejection() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.securityRejections++
	c.mu.Unlock()
	c.security.Inc()
}

// --- Ledger and adapter ---

// IncLedgerWrite records a ledger write outcome.
func (c *Collector) IncLedgerWrite(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.ledgerWriteSuccess++
	} else {
		c.ledgerWriteFailure++
	}
	c.mu.Unlock()
	c.ledgerWrites.WithLabelValues(outcome(ok)).Inc()
}

// IncAdapterPublish records a downstream publish outcome.
func (c *Collector) IncAdapterPublish(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.adapterPublishSuccess++
	} else {
		c.adapterPublishFailure++
	}
	c.mu.Unlock()
	c.adapterPublish.WithLabelValues(outcome(ok)).Inc()
}

// Snapshot returns a point-in-time copy of all counters.
// Returns a zero-value Snapshot if the receiver is nil.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	resolved := make(map[string]int64, len(c.resolvedBy))
	for k, v := range c.resolvedBy {
		resolved[k] = v
	}
	return Snapshot{
		ToolInvocations:       c.toolInvocations,
		ToolFailures:          c.toolFailures,
		ToolStartErrors:       c.toolStartErrors,
		ResolvedBy:            resolved,
		InstallFailures:       c.installFailures,
		ArchivesWritten:       c.archivesWritten,
		ArchiveWriteFailures:  c.archiveWriteFailures,
		SecurityRejections:    c.securityRejections,
		LedgerWriteSuccess:    c.ledgerWriteSuccess,
		LedgerWriteFailure:    c.ledgerWriteFailure,
		AdapterPublishSuccess: c.adapterPublishSuccess,
		AdapterPublishFailure: c.adapterPublishFailure,
		Command:               c.command,
		Platform:              c.platform,
	}
}

// Gatherer exposes the private registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// A nil receiver or empty path is a no-op.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
