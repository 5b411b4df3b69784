// Package types defines the domain records shared across vsixctl packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
)

// TaskContributionType marks a contribution that ships a pipeline task.
const TaskContributionType = "ms.vss-distributed-task.task"

// ExtensionManifest is the top-level extension descriptor
// (vss-extension.json or extension.vsomanifest).
//
// Unrecognized keys are kept in Extra and written back verbatim.
type ExtensionManifest struct {
	ManifestVersion int            `json:"manifestVersion,omitempty"`
	ID              string         `json:"id"`
	Publisher       string         `json:"publisher"`
	Version         string         `json:"version"`
	Name            string         `json:"name,omitempty"`
	Description     string         `json:"description,omitempty"`
	Public          *bool          `json:"public,omitempty"`
	GalleryFlags    []string       `json:"galleryFlags,omitempty"`
	Categories      []string       `json:"categories,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Contributions   []Contribution `json:"contributions,omitempty"`
	Files           []FileEntry    `json:"files,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// present lists the known keys found when decoding.
	present []string
}

var extensionManifestKeys = keySet(
	"manifestVersion", "id", "publisher", "version", "name", "description",
	"public", "galleryFlags", "categories", "tags", "contributions", "files",
)

// extensionManifestEmpty holds the encoding of each omitempty field when empty.
var extensionManifestEmpty = map[string]json.RawMessage{
	"manifestVersion": json.RawMessage(`0`),
	"name":            json.RawMessage(`""`),
	"description":     json.RawMessage(`""`),
	"public":          json.RawMessage(`null`),
	"galleryFlags":    json.RawMessage(`[]`),
	"categories":      json.RawMessage(`[]`),
	"tags":            json.RawMessage(`[]`),
	"contributions":   json.RawMessage(`[]`),
	"files":           json.RawMessage(`[]`),
}

type extensionManifestAlias ExtensionManifest

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (m *ExtensionManifest) UnmarshalJSON(data []byte) error {
	var a extensionManifestAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, present, err := extraFields(data, extensionManifestKeys)
	if err != nil {
		return err
	}
	*m = ExtensionManifest(a)
	m.Extra = extra
	m.present = present
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (m ExtensionManifest) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(extensionManifestAlias(m), m.Extra, m.present, extensionManifestEmpty)
}

// Identity returns "publisher.id".
func (m *ExtensionManifest) Identity() string {
	return m.Publisher + "." + m.ID
}

// CheckIdentity reports the first missing identity field.
func (m *ExtensionManifest) CheckIdentity() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("extension manifest: id is empty")
	case m.Publisher == "":
		return fmt.Errorf("extension manifest: publisher is empty")
	case m.Version == "":
		return fmt.Errorf("extension manifest: version is empty")
	}
	return nil
}

// TaskContributions returns the contributions that reference a task directory.
func (m *ExtensionManifest) TaskContributions() []Contribution {
	var out []Contribution
	for _, c := range m.Contributions {
		if c.Type == TaskContributionType && c.TaskDir() != "" {
			out = append(out, c)
		}
	}
	return out
}

// HasGalleryFlag reports whether flag is set (case-sensitive, as published).
func (m *ExtensionManifest) HasGalleryFlag(flag string) bool {
	for _, f := range m.GalleryFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Contribution is one entry of the manifest contribution list.
type Contribution struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	Description string                     `json:"description,omitempty"`
	Targets     []string                   `json:"targets,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// present lists the known keys found when decoding.
	present []string
}

var contributionKeys = keySet("id", "type", "description", "targets", "properties")

// contributionEmpty holds the encoding of each omitempty field when empty.
var contributionEmpty = map[string]json.RawMessage{
	"description": json.RawMessage(`""`),
	"targets":     json.RawMessage(`[]`),
	"properties":  json.RawMessage(`{}`),
}

type contributionAlias Contribution

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (c *Contribution) UnmarshalJSON(data []byte) error {
	var a contributionAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, present, err := extraFields(data, contributionKeys)
	if err != nil {
		return err
	}
	*c = Contribution(a)
	c.Extra = extra
	c.present = present
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (c Contribution) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(contributionAlias(c), c.Extra, c.present, contributionEmpty)
}

// StringProperty returns properties[key] when it is a JSON string.
func (c *Contribution) StringProperty(key string) string {
	raw, ok := c.Properties[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// TaskDir is the task directory named by properties.name.
func (c *Contribution) TaskDir() string {
	return c.StringProperty("name")
}

// FileEntry is one entry of the manifest files list.
type FileEntry struct {
	Path        string `json:"path"`
	Addressable bool   `json:"addressable,omitempty"`
	PackagePath string `json:"packagePath,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// present lists the known keys found when decoding.
	present []string
}

var fileEntryKeys = keySet("path", "addressable", "packagePath")

// fileEntryEmpty holds the encoding of each omitempty field when empty.
var fileEntryEmpty = map[string]json.RawMessage{
	"addressable": json.RawMessage(`false`),
	"packagePath": json.RawMessage(`""`),
}

type fileEntryAlias FileEntry

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (f *FileEntry) UnmarshalJSON(data []byte) error {
	var a fileEntryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, present, err := extraFields(data, fileEntryKeys)
	if err != nil {
		return err
	}
	*f = FileEntry(a)
	f.Extra = extra
	f.present = present
	return nil
}

// MarshalJSON encodes known fields merged with Extra.
func (f FileEntry) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(fileEntryAlias(f), f.Extra, f.present, fileEntryEmpty)
}
