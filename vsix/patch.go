package vsix

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/pithecene-io/vsixctl/types"
)

// previewFlag is the gallery flag that marks a preview listing.
const previewFlag = "Preview"

var pricingFlags = []string{"Free", "Paid", "Trial"}

// applyOverrides mutates m in place.
func applyOverrides(m *types.ExtensionManifest, o ManifestOverrides) error {
	if o.Publisher != nil {
		m.Publisher = *o.Publisher
	}
	if o.ExtensionID != nil {
		m.ID = *o.ExtensionID
	}
	if o.Version != nil {
		m.Version = *o.Version
	}
	if o.Name != nil {
		m.Name = *o.Name
	}
	if o.Description != nil {
		m.Description = *o.Description
	}
	if o.Visibility != nil {
		v := *o.Visibility
		if _, err := ParseVisibility(string(v)); err != nil {
			return err
		}
		public := v.public()
		m.Public = &public
		m.GalleryFlags = setFlag(m.GalleryFlags, previewFlag, v.preview())
	}
	if o.Pricing != nil {
		p := *o.Pricing
		if _, err := ParsePricing(string(p)); err != nil {
			return err
		}
		for _, f := range pricingFlags {
			m.GalleryFlags = setFlag(m.GalleryFlags, f, false)
		}
		if f := p.flag(); f != "" {
			m.GalleryFlags = setFlag(m.GalleryFlags, f, true)
		}
	}
	return nil
}

func setFlag(flags []string, flag string, on bool) []string {
	i := slices.Index(flags, flag)
	switch {
	case on && i < 0:
		return append(flags, flag)
	case !on && i >= 0:
		return slices.Delete(slices.Clone(flags), i, i+1)
	}
	return flags
}

// patchManifest applies o to manifest bytes.
func patchManifest(name string, data []byte, o ManifestOverrides) ([]byte, *types.ExtensionManifest, error) {
	var m types.ExtensionManifest
	if err := json.Unmarshal(trimBOM(data), &m); err != nil {
		return nil, nil, &ParseError{Path: name, Err: err}
	}
	if err := applyOverrides(&m, o); err != nil {
		return nil, nil, err
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return append(out, '\n'), &m, nil
}

// DeriveTaskID returns the deterministic task id for a task of the given
// extension: a UUIDv5 of "publisher.extensionId.taskName".
func DeriveTaskID(publisher, extensionID, taskName string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(publisher+"."+extensionID+"."+taskName)).String()
}

// resolveTaskOverride merges the wildcard override with the task-specific
// ones. A specific override matches the task directory or its task.json name.
func resolveTaskOverride(all map[string]TaskOverride, dir, name string) TaskOverride {
	t := all[AllTasks]
	for _, key := range []string{dir, name} {
		if key == "" {
			continue
		}
		s, ok := all[key]
		if !ok {
			continue
		}
		if s.Version != nil {
			t.Version = s.Version
		}
		if s.ID != nil {
			t.ID = s.ID
		}
		t.SyncVersion = t.SyncVersion || s.SyncVersion
		t.DeriveID = t.DeriveID || s.DeriveID
	}
	return t
}

// patchTask applies the matching overrides to task.json bytes. ext is the
// final extension manifest. A nil result means no override applies.
func patchTask(taskPath, dir string, data []byte, overrides map[string]TaskOverride, ext *types.ExtensionManifest) ([]byte, error) {
	var tm types.TaskManifest
	if err := json.Unmarshal(trimBOM(data), &tm); err != nil {
		return nil, &ParseError{Path: taskPath, Err: err}
	}
	t := resolveTaskOverride(overrides, dir, tm.Name)
	if t.isEmpty() {
		return nil, nil
	}

	switch {
	case t.Version != nil:
		tm.Version = *t.Version
	case t.SyncVersion:
		v, err := types.ParseTaskVersion(ext.Version)
		if err != nil {
			return nil, fmt.Errorf("task %s: extension version: %w", dir, err)
		}
		tm.Version = v
	}

	switch {
	case t.ID != nil:
		tm.ID = *t.ID
	case t.DeriveID:
		tm.ID = DeriveTaskID(ext.Publisher, ext.ID, dir)
	}

	out, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", taskPath, err)
	}
	return append(out, '\n'), nil
}

// taskNameOf returns the name field of task.json bytes, or "" when the
// document does not parse.
func taskNameOf(data []byte) string {
	var probe struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(trimBOM(data), &probe) != nil {
		return ""
	}
	return probe.Name
}
