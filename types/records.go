package types

import "time"

// Ledger record kinds.
const (
	RecordKindInvocation = "invocation"
	RecordKindPackage    = "package"
)

// InvocationRecord is the durable trace of one external tool invocation.
type InvocationRecord struct {
	InvocationID string        `json:"invocation_id"`
	Command      string        `json:"command"`
	Tool         string        `json:"tool"`
	ToolVersion  string        `json:"tool_version,omitempty"`
	ToolPath     string        `json:"tool_path"`
	Args         []string      `json:"args"`
	ExitCode     int           `json:"exit_code"`
	JSONCaptured bool          `json:"json_captured"`
	Duration     time.Duration `json:"duration_ns"`
	StartedAt    time.Time     `json:"started_at"`
	Platform     string        `json:"platform,omitempty"`

	// Extension identity, when known.
	Publisher   string `json:"publisher,omitempty"`
	ExtensionID string `json:"extension_id,omitempty"`
}

// PackageRecord describes a produced or published extension package.
type PackageRecord struct {
	InvocationID     string    `json:"invocation_id"`
	Command          string    `json:"command"`
	Publisher        string    `json:"publisher"`
	ExtensionID      string    `json:"extension_id"`
	ExtensionVersion string    `json:"extension_version"`
	VSIXPath         string    `json:"vsix_path,omitempty"`
	SHA256           string    `json:"sha256,omitempty"`
	SizeBytes        int64     `json:"size_bytes,omitempty"`
	Published        bool      `json:"published"`
	ArchivePath      string    `json:"archive_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// EventExtensionPublished is the EventType of ExtensionEvent after a
// successful publish.
const EventExtensionPublished = "extension_published"

// EventExtensionPackaged is the EventType of ExtensionEvent after a
// successful package.
const EventExtensionPackaged = "extension_packaged"

// ExtensionEvent is the notification sent to downstream systems.
type ExtensionEvent struct {
	ContractVersion  string `json:"contract_version"`
	EventType        string `json:"event_type"`
	InvocationID     string `json:"invocation_id"`
	Publisher        string `json:"publisher"`
	ExtensionID      string `json:"extension_id"`
	ExtensionVersion string `json:"extension_version"`
	VSIXPath         string `json:"vsix_path,omitempty"`
	ArchivePath      string `json:"archive_path,omitempty"`
	SHA256           string `json:"sha256,omitempty"`
	Platform         string `json:"platform,omitempty"`
	Timestamp        string `json:"timestamp"`
}

// EventContractVersion is the shape version of ExtensionEvent.
const EventContractVersion = "1"
