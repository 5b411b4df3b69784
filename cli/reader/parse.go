package reader

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pithecene-io/vsixctl/types"
)

// ParseHistoryRecord converts a ledger record (map[string]any) to a row.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for
// numeric fields.
func ParseHistoryRecord(record map[string]any) (HistoryItem, error) {
	if record == nil {
		return HistoryItem{}, errors.New("nil record")
	}

	item := HistoryItem{
		Kind:         toString(record["record_kind"]),
		Command:      toString(record["command"]),
		Publisher:    toString(record["publisher"]),
		ExtensionID:  toString(record["extension_id"]),
		InvocationID: toString(record["invocation_id"]),
	}

	switch item.Kind {
	case types.RecordKindInvocation:
		item.Time = toString(record["started_at"])
		item.Detail = "exit " + strconv.FormatInt(toInt64(record["exit_code"]), 10)
	case types.RecordKindPackage:
		item.Time = toString(record["created_at"])
		item.Detail = toString(record["extension_version"])
		if toBool(record["published"]) {
			item.Detail += " (published)"
		}
	default:
		return HistoryItem{}, fmt.Errorf("unknown record_kind %q", item.Kind)
	}

	if item.Time == "" {
		return HistoryItem{}, fmt.Errorf("%s record missing timestamp", item.Kind)
	}
	return item, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
