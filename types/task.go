package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned when a task version is not three
// dot-separated non-negative integers.
var ErrInvalidVersion = errors.New("invalid task version")

// TaskManifest is a task.json descriptor.
//
// Unrecognized keys are kept in Extra and written back verbatim.
type TaskManifest struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	FriendlyName string      `json:"friendlyName,omitempty"`
	Description  string      `json:"description,omitempty"`
	Version      TaskVersion `json:"version"`
	Inputs       []TaskInput `json:"inputs,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// present lists the known keys found when decoding.
	present []string
}

var taskManifestKeys = keySet("id", "name", "friendlyName", "description", "version", "inputs")

// taskManifestEmpty holds the encoding of each omitempty field when empty.
var taskManifestEmpty = map[string]json.RawMessage{
	"friendlyName": json.RawMessage(`""`),
	"description":  json.RawMessage(`""`),
	"inputs":       json.RawMessage(`[]`),
}

type taskManifestAlias TaskManifest

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (t *TaskManifest) UnmarshalJSON(data []byte) error {
	var a taskManifestAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, present, err := extraFields(data, taskManifestKeys)
	if err != nil {
		return err
	}
	*t = TaskManifest(a)
	t.Extra = extra
	t.present = present
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (t TaskManifest) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(taskManifestAlias(t), t.Extra, t.present, taskManifestEmpty)
}

// TaskInput is one task input definition.
type TaskInput struct {
	Name         string          `json:"name"`
	Type         string          `json:"type,omitempty"`
	Label        string          `json:"label,omitempty"`
	Required     bool            `json:"required,omitempty"`
	DefaultValue json.RawMessage `json:"defaultValue,omitempty"`
	HelpMarkDown string          `json:"helpMarkDown,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// present lists the known keys found when decoding.
	present []string
}

var taskInputKeys = keySet("name", "type", "label", "required", "defaultValue", "helpMarkDown")

// taskInputEmpty holds the encoding of each omitempty field when empty.
var taskInputEmpty = map[string]json.RawMessage{
	"type":         json.RawMessage(`""`),
	"label":        json.RawMessage(`""`),
	"required":     json.RawMessage(`false`),
	"defaultValue": json.RawMessage(`null`),
	"helpMarkDown": json.RawMessage(`""`),
}

type taskInputAlias TaskInput

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (in *TaskInput) UnmarshalJSON(data []byte) error {
	var a taskInputAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, present, err := extraFields(data, taskInputKeys)
	if err != nil {
		return err
	}
	*in = TaskInput(a)
	in.Extra = extra
	in.present = present
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (in TaskInput) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(taskInputAlias(in), in.Extra, in.present, taskInputEmpty)
}

// TaskVersion is the Major/Minor/Patch triple of a task.
type TaskVersion struct {
	Major int `json:"Major"`
	Minor int `json:"Minor"`
	Patch int `json:"Patch"`
}

// String formats the version as "Major.Minor.Patch".
func (v TaskVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// UnmarshalJSON accepts numeric or string components; task.json files in
// the wild use both.
func (v *TaskVersion) UnmarshalJSON(data []byte) error {
	var raw struct {
		Major json.RawMessage `json:"Major"`
		Minor json.RawMessage `json:"Minor"`
		Patch json.RawMessage `json:"Patch"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if v.Major, err = versionPart(raw.Major); err != nil {
		return fmt.Errorf("Major: %w", err)
	}
	if v.Minor, err = versionPart(raw.Minor); err != nil {
		return fmt.Errorf("Minor: %w", err)
	}
	if v.Patch, err = versionPart(raw.Patch); err != nil {
		return fmt.Errorf("Patch: %w", err)
	}
	return nil
}

func versionPart(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected number or string, got %s", raw)
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// ParseTaskVersion parses "Major.Minor.Patch". Each part must be a
// non-negative decimal integer.
func ParseTaskVersion(s string) (TaskVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return TaskVersion{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var nums [3]int
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return TaskVersion{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return TaskVersion{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		nums[i] = n
	}
	return TaskVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
