package ledger

import (
	"strings"
	"time"

	"github.com/pithecene-io/vsixctl/types"
)

// unknownPartition stands in for an empty partition value.
const unknownPartition = "_"

// DeriveDay computes the day partition. Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// partitionValue makes s safe as one Hive path segment.
func partitionValue(s string) string {
	if s == "" {
		return unknownPartition
	}
	s = strings.NewReplacer("/", "_", "\\", "_", "=", "_").Replace(s)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}

// invocationRecordMap converts an InvocationRecord for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func invocationRecordMap(r types.InvocationRecord) map[string]any {
	args := r.Args
	if args == nil {
		args = []string{}
	}
	return map[string]any{
		"record_kind":   types.RecordKindInvocation,
		"invocation_id": r.InvocationID,
		"command":       r.Command,
		"tool":          r.Tool,
		"tool_version":  r.ToolVersion,
		"tool_path":     r.ToolPath,
		"args":          args,
		"exit_code":     r.ExitCode,
		"json_captured": r.JSONCaptured,
		"duration_ms":   r.Duration.Milliseconds(),
		"started_at":    r.StartedAt.UTC().Format(time.RFC3339Nano),
		"platform":      r.Platform,
		"publisher":     partitionValue(r.Publisher),
		"extension_id":  partitionValue(r.ExtensionID),
		"day":           DeriveDay(r.StartedAt),
	}
}

// packageRecordMap converts a PackageRecord for Lode storage.
func packageRecordMap(r types.PackageRecord) map[string]any {
	return map[string]any{
		"record_kind":       types.RecordKindPackage,
		"invocation_id":     r.InvocationID,
		"command":           r.Command,
		"extension_version": r.ExtensionVersion,
		"vsix_path":         r.VSIXPath,
		"sha256":            r.SHA256,
		"size_bytes":        r.SizeBytes,
		"published":         r.Published,
		"archive_path":      r.ArchivePath,
		"created_at":        r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"publisher":         partitionValue(r.Publisher),
		"extension_id":      partitionValue(r.ExtensionID),
		"day":               DeriveDay(r.CreatedAt),
	}
}
