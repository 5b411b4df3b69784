package types

import (
	"encoding/json"
	"strings"
)

// extraFields returns the top-level keys of an object that are not part of
// the known field set, and the canonical names of the known keys that were
// present. Matching is case-insensitive to mirror encoding/json.
func extraFields(data []byte, known map[string]string) (map[string]json.RawMessage, []string, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil, err
	}
	var (
		extra   map[string]json.RawMessage
		present []string
	)
	for k, v := range all {
		if name, ok := known[strings.ToLower(k)]; ok {
			present = append(present, name)
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, present, nil
}

// marshalWithExtra encodes known and overlays any extra keys that the known
// encoding did not produce. Known fields always win. A present key that
// omitempty dropped is written back as its entry in empty, so a source
// "tags": [] stays in the output.
func marshalWithExtra(known any, extra map[string]json.RawMessage, present []string, empty map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 && len(present) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	restored := false
	for _, k := range present {
		if _, ok := merged[k]; ok {
			continue
		}
		if v, ok := empty[k]; ok {
			merged[k] = v
			restored = true
		}
	}
	if len(extra) == 0 && !restored {
		return data, nil
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// keySet maps lower-cased keys to their canonical spelling.
func keySet(keys ...string) map[string]string {
	set := make(map[string]string, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = k
	}
	return set
}
