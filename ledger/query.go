package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// Query filters Recent. Empty fields match everything.
type Query struct {
	RecordKind  string
	Publisher   string
	ExtensionID string
	// Limit caps the result. Zero means no limit.
	Limit int
}

// Recent returns matching records, newest snapshot first.
func (l *Ledger) Recent(ctx context.Context, q Query) ([]map[string]any, error) {
	snapshots, err := l.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, l.config.Dataset+"/snapshots")
	}

	var out []map[string]any
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "record_kind", q.RecordKind) ||
			!snapshotMatches(snap, "publisher", filterValue(q.Publisher)) ||
			!snapshotMatches(snap, "extension_id", filterValue(q.ExtensionID)) {
			continue
		}

		data, err := l.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", l.config.Dataset, snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !recordMatches(record, q) {
				continue
			}
			out = append(out, record)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func filterValue(s string) string {
	if s == "" {
		return ""
	}
	return partitionValue(s)
}

func recordMatches(record map[string]any, q Query) bool {
	if q.RecordKind != "" && toString(record["record_kind"]) != q.RecordKind {
		return false
	}
	if q.Publisher != "" && toString(record["publisher"]) != partitionValue(q.Publisher) {
		return false
	}
	if q.ExtensionID != "" && toString(record["extension_id"]) != partitionValue(q.ExtensionID) {
		return false
	}
	return true
}

// snapshotMatches checks a snapshot's file paths for an exact key=value
// segment. An empty value matches.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
