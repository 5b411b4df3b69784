package vsix

import (
	"fmt"
	"maps"
	"strings"

	"github.com/pithecene-io/vsixctl/types"
)

// ModKind is the kind of a pending file change.
type ModKind int

const (
	ModModify ModKind = iota
	ModAdd
	ModRemove
)

func (k ModKind) String() string {
	switch k {
	case ModModify:
		return "modify"
	case ModAdd:
		return "add"
	case ModRemove:
		return "remove"
	default:
		return fmt.Sprintf("ModKind(%d)", int(k))
	}
}

// Modification is a pending file change keyed by normalized path.
type Modification struct {
	Kind    ModKind
	Path    string
	Content []byte
}

// ManifestOverrides holds the extension manifest fields to replace.
// Nil fields are left as they are.
type ManifestOverrides struct {
	Publisher   *string
	ExtensionID *string
	Version     *string
	Name        *string
	Description *string
	Visibility  *Visibility
	Pricing     *Pricing
}

// IsEmpty reports whether no field is set.
func (o ManifestOverrides) IsEmpty() bool {
	return o.Publisher == nil && o.ExtensionID == nil && o.Version == nil &&
		o.Name == nil && o.Description == nil && o.Visibility == nil && o.Pricing == nil
}

// touchesIdentity reports whether extension.vsixmanifest needs a rewrite.
func (o ManifestOverrides) touchesIdentity() bool {
	return o.Publisher != nil || o.ExtensionID != nil || o.Version != nil ||
		o.Name != nil || o.Description != nil
}

// AllTasks is the TaskOverride key that applies to every task.
const AllTasks = "*"

// TaskOverride holds pending task.json changes for one task.
type TaskOverride struct {
	Version *types.TaskVersion
	ID      *string

	// SyncVersion sets the task version from the final extension version.
	SyncVersion bool
	// DeriveID replaces the task id with a UUIDv5 of
	// "publisher.extensionId.taskName".
	DeriveID bool
}

func (t TaskOverride) isEmpty() bool {
	return t.Version == nil && t.ID == nil && !t.SyncVersion && !t.DeriveID
}

// Editor accumulates changes against a Reader. It never touches the
// filesystem; ToWriter hands the changes to a Writer.
type Editor struct {
	reader    *Reader
	overrides ManifestOverrides
	tasks     map[string]TaskOverride
	mods      map[string]*Modification
}

// NewEditor returns an Editor over r.
func NewEditor(r *Reader) *Editor {
	return &Editor{
		reader: r,
		tasks:  make(map[string]TaskOverride),
		mods:   make(map[string]*Modification),
	}
}

// SetPublisher overrides the manifest publisher.
func (e *Editor) SetPublisher(v string) *Editor {
	e.overrides.Publisher = &v
	return e
}

// SetExtensionID overrides the manifest id.
func (e *Editor) SetExtensionID(v string) *Editor {
	e.overrides.ExtensionID = &v
	return e
}

// SetVersion overrides the manifest version.
func (e *Editor) SetVersion(v string) *Editor {
	e.overrides.Version = &v
	return e
}

// SetName overrides the manifest display name.
func (e *Editor) SetName(v string) *Editor {
	e.overrides.Name = &v
	return e
}

// SetDescription overrides the manifest description.
func (e *Editor) SetDescription(v string) *Editor {
	e.overrides.Description = &v
	return e
}

// SetVisibility overrides the marketplace visibility.
func (e *Editor) SetVisibility(v Visibility) *Editor {
	e.overrides.Visibility = &v
	return e
}

// SetPricing overrides the marketplace pricing.
func (e *Editor) SetPricing(v Pricing) *Editor {
	e.overrides.Pricing = &v
	return e
}

// UpdateTaskVersion records a version for the named task. The name matches
// either the task directory or the name field inside task.json.
func (e *Editor) UpdateTaskVersion(task, version string) error {
	v, err := types.ParseTaskVersion(version)
	if err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}
	t := e.tasks[task]
	t.Version = &v
	e.tasks[task] = t
	return nil
}

// UpdateTaskID records a new id for the named task.
func (e *Editor) UpdateTaskID(task, id string) *Editor {
	t := e.tasks[task]
	t.ID = &id
	e.tasks[task] = t
	return e
}

// SetFile records replacement content for an existing entry. The path is
// validated immediately.
func (e *Editor) SetFile(p string, content []byte) error {
	return e.record("setFile", ModModify, p, content)
}

// AddFile records a new entry. The path is validated immediately.
func (e *Editor) AddFile(p string, content []byte) error {
	return e.record("addFile", ModAdd, p, content)
}

func (e *Editor) record(op string, kind ModKind, p string, content []byte) error {
	norm, err := validatePath(op, p)
	if err != nil {
		return err
	}
	e.mods[norm] = &Modification{Kind: kind, Path: norm, Content: append([]byte(nil), content...)}
	return nil
}

// RemoveFile records a deletion. The path is normalized here and validated
// when the Writer runs.
func (e *Editor) RemoveFile(p string) *Editor {
	norm := NormalizePath(p)
	e.mods[norm] = &Modification{Kind: ModRemove, Path: norm}
	return e
}

// Modifications returns the live modification set. Entries added directly
// to the map skip the Editor's checks but not the Writer's.
func (e *Editor) Modifications() map[string]*Modification {
	return e.mods
}

// Overrides returns a copy of the pending manifest overrides.
func (e *Editor) Overrides() ManifestOverrides {
	return e.overrides
}

// TaskOverrides returns a copy of the pending task overrides.
func (e *Editor) TaskOverrides() map[string]TaskOverride {
	return maps.Clone(e.tasks)
}

// Reader returns the Reader the Editor was created over.
func (e *Editor) Reader() *Reader {
	return e.reader
}

// ToWriter snapshots the pending changes into a Writer.
func (e *Editor) ToWriter() *Writer {
	mods := make(map[string]*Modification, len(e.mods))
	for k, m := range e.mods {
		if m == nil {
			continue
		}
		cp := *m
		mods[k] = &cp
	}
	return &Writer{
		reader:    e.reader,
		overrides: e.overrides,
		tasks:     maps.Clone(e.tasks),
		mods:      mods,
	}
}

// Options is the declarative form of the Editor setters. Empty strings and
// false values leave the corresponding field alone.
type Options struct {
	Publisher   string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	ExtensionID string `json:"extension_id,omitempty" yaml:"extension_id,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Pricing     string `json:"pricing,omitempty" yaml:"pricing,omitempty"`

	// UpdateTasksVersion sets every task version to the extension version.
	UpdateTasksVersion bool `json:"update_tasks_version,omitempty" yaml:"update_tasks_version,omitempty"`
	// UpdateTasksID derives every task id from the extension identity.
	UpdateTasksID bool `json:"update_tasks_id,omitempty" yaml:"update_tasks_id,omitempty"`
}

// ApplyOptions applies every non-empty option.
func (e *Editor) ApplyOptions(o Options) error {
	var (
		vis Visibility
		pr  Pricing
		err error
	)
	if o.Visibility != "" {
		if vis, err = ParseVisibility(o.Visibility); err != nil {
			return err
		}
	}
	if o.Pricing != "" {
		if pr, err = ParsePricing(o.Pricing); err != nil {
			return err
		}
	}
	if o.UpdateTasksVersion && o.Version != "" {
		if _, err := types.ParseTaskVersion(o.Version); err != nil {
			return fmt.Errorf("update tasks version: %w", err)
		}
	}

	if o.Publisher != "" {
		e.SetPublisher(o.Publisher)
	}
	if o.ExtensionID != "" {
		e.SetExtensionID(o.ExtensionID)
	}
	if o.Version != "" {
		e.SetVersion(o.Version)
	}
	if o.Name != "" {
		e.SetName(o.Name)
	}
	if o.Description != "" {
		e.SetDescription(o.Description)
	}
	if o.Visibility != "" {
		e.SetVisibility(vis)
	}
	if o.Pricing != "" {
		e.SetPricing(pr)
	}
	if o.UpdateTasksVersion || o.UpdateTasksID {
		t := e.tasks[AllTasks]
		t.SyncVersion = t.SyncVersion || o.UpdateTasksVersion
		t.DeriveID = t.DeriveID || o.UpdateTasksID
		e.tasks[AllTasks] = t
	}
	return nil
}

// Visibility is the marketplace visibility of an extension.
type Visibility string

const (
	VisibilityPrivate        Visibility = "private"
	VisibilityPublic         Visibility = "public"
	VisibilityPrivatePreview Visibility = "private_preview"
	VisibilityPublicPreview  Visibility = "public_preview"
)

// ParseVisibility validates a visibility name.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case VisibilityPrivate, VisibilityPublic, VisibilityPrivatePreview, VisibilityPublicPreview:
		return v, nil
	}
	return "", fmt.Errorf("unknown visibility %q (valid: private, public, private_preview, public_preview)", s)
}

func (v Visibility) public() bool {
	return v == VisibilityPublic || v == VisibilityPublicPreview
}

func (v Visibility) preview() bool {
	return v == VisibilityPrivatePreview || v == VisibilityPublicPreview
}

// Pricing is the marketplace pricing model of an extension.
type Pricing string

const (
	PricingDefault Pricing = "default"
	PricingFree    Pricing = "free"
	PricingPaid    Pricing = "paid"
	PricingTrial   Pricing = "trial"
)

// ParsePricing validates a pricing name.
func ParsePricing(s string) (Pricing, error) {
	switch p := Pricing(strings.ToLower(strings.TrimSpace(s))); p {
	case PricingDefault, PricingFree, PricingPaid, PricingTrial:
		return p, nil
	}
	return "", fmt.Errorf("unknown pricing %q (valid: default, free, paid, trial)", s)
}

func (p Pricing) flag() string {
	switch p {
	case PricingFree:
		return "Free"
	case PricingPaid:
		return "Paid"
	case PricingTrial:
		return "Trial"
	}
	return ""
}
