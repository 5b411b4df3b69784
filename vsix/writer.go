package vsix

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/vsixctl/iox"
	"github.com/pithecene-io/vsixctl/types"
)

// OverridesFileName is the name of the file written by OverridesPath.
const OverridesFileName = "overrides.json"

// Writer materializes a Reader plus pending changes as a new archive or
// directory tree. Nothing is written until every output path has been
// validated.
type Writer struct {
	reader    *Reader
	overrides ManifestOverrides
	tasks     map[string]TaskOverride
	mods      map[string]*Modification

	mu            sync.Mutex
	tempDirs      []string
	scratch       string
	overridesPath string
	closed        bool
}

// NewWriter returns a Writer that copies r unchanged.
func NewWriter(r *Reader) *Writer {
	return NewEditor(r).ToWriter()
}

// Overrides returns the manifest overrides the Writer applies.
func (w *Writer) Overrides() ManifestOverrides {
	return w.overrides
}

type planEntry struct {
	path    string
	raw     string
	content []byte
	// replaced means content is authoritative even when raw is set.
	replaced bool
	info     entryInfo
}

type writePlan struct {
	entries []planEntry
	// removed holds raw names of original entries dropped from the output.
	removed []string
}

// Files returns the paths the Writer would produce, in output order.
func (w *Writer) Files() ([]string, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	p, err := w.plan()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.path
	}
	return out, nil
}

func (w *Writer) plan() (*writePlan, error) {
	r := w.reader
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	mods := make(map[string]*Modification, len(w.mods))
	for key, m := range w.mods {
		if m == nil {
			continue
		}
		if _, err := validatePath("write", key); err != nil {
			return nil, err
		}
		p := m.Path
		if p == "" {
			p = key
		}
		norm, err := validatePath("write", p)
		if err != nil {
			return nil, err
		}
		cp := *m
		cp.Path = norm
		mods[norm] = &cp
	}

	patches, err := w.patches(mods)
	if err != nil {
		return nil, err
	}

	plan := &writePlan{}
	seen := make(map[string]bool, len(r.index))
	for _, raw := range r.c.Names() {
		if _, err := validatePath("write", raw); err != nil {
			return nil, err
		}
		norm := NormalizePath(raw)
		if seen[norm] {
			continue
		}
		seen[norm] = true

		e := planEntry{path: norm, raw: raw, info: r.c.Info(raw)}
		if m, ok := mods[norm]; ok {
			if m.Kind == ModRemove {
				plan.removed = append(plan.removed, raw)
				continue
			}
			e.content, e.replaced = m.Content, true
		}
		if b, ok := patches[norm]; ok {
			e.content, e.replaced = b, true
		}
		plan.entries = append(plan.entries, e)
	}

	added := make([]string, 0, len(mods))
	for norm, m := range mods {
		if !seen[norm] && m.Kind != ModRemove {
			added = append(added, norm)
		}
	}
	sort.Strings(added)
	now := time.Now()
	for _, norm := range added {
		e := planEntry{
			path:     norm,
			content:  mods[norm].Content,
			replaced: true,
			info:     entryInfo{Method: zip.Deflate, Modified: now},
		}
		if b, ok := patches[norm]; ok {
			e.content = b
		}
		plan.entries = append(plan.entries, e)
	}

	if err := w.patchContentTypes(plan, mods); err != nil {
		return nil, err
	}
	return plan, nil
}

// patches computes rewritten manifest, task and vsixmanifest content.
func (w *Writer) patches(mods map[string]*Modification) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if w.overrides.IsEmpty() && len(w.tasks) == 0 {
		return out, nil
	}

	manifestPath, err := w.reader.ManifestPath()
	if err != nil {
		return nil, err
	}
	if m, ok := mods[manifestPath]; ok && m.Kind == ModRemove {
		return nil, fmt.Errorf("manifest %s is removed but has pending overrides", manifestPath)
	}

	base, _, err := w.currentContent(manifestPath, mods)
	if err != nil {
		return nil, err
	}
	patched, final, err := patchManifest(manifestPath, base, w.overrides)
	if err != nil {
		return nil, err
	}
	if !w.overrides.IsEmpty() {
		out[manifestPath] = patched
	}

	if len(w.tasks) > 0 {
		if err := w.patchTasks(out, mods, final); err != nil {
			return nil, err
		}
	}

	if w.overrides.touchesIdentity() {
		data, ok, err := w.currentContent(VSIXManifestPath, mods)
		if err != nil {
			return nil, err
		}
		if ok {
			out[VSIXManifestPath] = patchVSIXManifest(data, w.overrides)
		}
	}
	return out, nil
}

func (w *Writer) patchTasks(out map[string][]byte, mods map[string]*Modification, final *types.ExtensionManifest) error {
	matched := make(map[string]bool, len(w.tasks))
	for _, c := range final.TaskContributions() {
		dir := NormalizePath(c.TaskDir())
		taskPath, err := validatePath("write", path.Join(dir, TaskManifestFile))
		if err != nil {
			return err
		}
		data, ok, err := w.currentContent(taskPath, mods)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		patched, err := patchTask(taskPath, dir, data, w.tasks, final)
		if err != nil {
			return err
		}
		matched[dir] = true
		if name := taskNameOf(data); name != "" {
			matched[name] = true
		}
		if patched != nil {
			out[taskPath] = patched
		}
	}
	for key := range w.tasks {
		if key != AllTasks && !matched[key] {
			return fmt.Errorf("task %q: %w", key, ErrNotFound)
		}
	}
	return nil
}

// currentContent returns the content of norm after modifications. The bool
// is false when the entry does not exist or is removed.
func (w *Writer) currentContent(norm string, mods map[string]*Modification) ([]byte, bool, error) {
	if m, ok := mods[norm]; ok {
		if m.Kind == ModRemove {
			return nil, false, nil
		}
		return m.Content, true, nil
	}
	raw, ok := w.reader.index[norm]
	if !ok {
		return nil, false, nil
	}
	data, err := w.reader.readRaw(raw)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (w *Writer) patchContentTypes(plan *writePlan, mods map[string]*Modification) error {
	if _, userSet := mods[ContentTypesPath]; userSet {
		return nil
	}
	idx := slices.IndexFunc(plan.entries, func(e planEntry) bool { return e.path == ContentTypesPath })
	if idx < 0 {
		return nil
	}
	paths := make([]string, len(plan.entries))
	for i, e := range plan.entries {
		paths[i] = e.path
	}
	data, err := w.reader.readRaw(plan.entries[idx].raw)
	if err != nil {
		return err
	}
	patched, changed, err := patchContentTypes(data, paths)
	if err != nil {
		return err
	}
	if changed {
		plan.entries[idx].content = patched
		plan.entries[idx].replaced = true
	}
	return nil
}

// WriteToFile writes the package as a zip archive at out. The archive is
// assembled in a temp file next to out and renamed into place, so a failed
// write leaves no partial output.
func (w *Writer) WriteToFile(out string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	plan, err := w.plan()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
	}

	err = iox.WriteAtomic(out, 0o644, func(f io.Writer) error {
		zw := zip.NewWriter(f)
		for _, e := range plan.entries {
			if err := w.writeZipEntry(zw, e); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

func (w *Writer) writeZipEntry(zw *zip.Writer, e planEntry) error {
	method := e.info.Method
	if method != zip.Store {
		method = zip.Deflate
	}
	modified := e.info.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	hdr := &zip.FileHeader{Name: e.path, Method: method, Modified: modified}
	if e.info.Mode != 0 {
		hdr.SetMode(e.info.Mode)
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("entry %q: %w", e.path, err)
	}
	if e.replaced || e.raw == "" {
		_, err = dst.Write(e.content)
		return err
	}
	return w.copyOriginal(dst, e)
}

func (w *Writer) copyOriginal(dst io.Writer, e planEntry) error {
	src, err := w.reader.c.Open(e.raw)
	if err != nil {
		return fmt.Errorf("entry %q: %w", e.raw, err)
	}
	defer iox.DiscardClose(src)
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("entry %q: %w", e.raw, err)
	}
	return nil
}

// WriteToFilesystem materializes the package under root and returns root.
// An empty root selects a fresh temp directory owned by the Writer and
// removed by Close. When root is the directory the Reader was opened on,
// only changed entries are written and removed entries are deleted.
func (w *Writer) WriteToFilesystem(root string) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	plan, err := w.plan()
	if err != nil {
		return "", err
	}
	if root == "" {
		if root, err = w.newTempDir("vsixctl-tree-*"); err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}

	inPlace := w.reader.dir && samePath(root, w.reader.source)

	// Every target is checked before the first write.
	targets := make([]string, len(plan.entries))
	for i, e := range plan.entries {
		if inPlace && !e.replaced && e.raw != "" {
			continue
		}
		if targets[i], err = joinWithin(root, e.path); err != nil {
			return "", err
		}
	}
	var removals []string
	if inPlace {
		for _, raw := range plan.removed {
			target, err := joinWithin(root, NormalizePath(raw))
			if err != nil {
				return "", err
			}
			removals = append(removals, target)
		}
	}

	for i, e := range plan.entries {
		target := targets[i]
		if target == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		if e.replaced || e.raw == "" {
			err = iox.WriteFileAtomic(target, e.content, 0o644)
		} else {
			err = iox.WriteAtomic(target, 0o644, func(f io.Writer) error {
				return w.copyOriginal(f, e)
			})
		}
		if err != nil {
			return "", fmt.Errorf("write %s: %w", target, err)
		}
	}

	for _, target := range removals {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return root, nil
}

// OverridesPath writes the manifest overrides as JSON into a Writer-owned
// temp directory and returns the file path. It returns "" when there are
// no overrides.
func (w *Writer) OverridesPath() (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	w.mu.Lock()
	cached := w.overridesPath
	w.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	if w.overrides.IsEmpty() {
		return "", nil
	}

	doc, err := w.overridesDocument()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	dir, err := w.scratchDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, OverridesFileName)
	if err := iox.WriteFileAtomic(p, data, 0o600); err != nil {
		return "", err
	}

	w.mu.Lock()
	w.overridesPath = p
	w.mu.Unlock()
	return p, nil
}

func (w *Writer) overridesDocument() (map[string]any, error) {
	o := w.overrides
	doc := make(map[string]any)
	if o.Publisher != nil {
		doc["publisher"] = *o.Publisher
	}
	if o.ExtensionID != nil {
		doc["id"] = *o.ExtensionID
	}
	if o.Version != nil {
		doc["version"] = *o.Version
	}
	if o.Name != nil {
		doc["name"] = *o.Name
	}
	if o.Description != nil {
		doc["description"] = *o.Description
	}
	if o.Visibility == nil && o.Pricing == nil {
		return doc, nil
	}

	var base types.ExtensionManifest
	if m, err := w.reader.ReadExtensionManifest(); err == nil {
		base = *m
		base.GalleryFlags = slices.Clone(m.GalleryFlags)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := applyOverrides(&base, ManifestOverrides{Visibility: o.Visibility, Pricing: o.Pricing}); err != nil {
		return nil, err
	}
	if o.Visibility != nil && base.Public != nil {
		doc["public"] = *base.Public
	}
	flags := base.GalleryFlags
	if flags == nil {
		flags = []string{}
	}
	doc["galleryFlags"] = flags
	return doc, nil
}

// Close removes every temp directory the Writer created. It is safe to
// call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, dir := range w.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	w.tempDirs = nil
	return errors.Join(errs...)
}

func (w *Writer) checkOpen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer: %w", ErrClosed)
	}
	return nil
}

func (w *Writer) newTempDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.tempDirs = append(w.tempDirs, dir)
	w.mu.Unlock()
	return dir, nil
}

func (w *Writer) scratchDir() (string, error) {
	w.mu.Lock()
	dir := w.scratch
	w.mu.Unlock()
	if dir != "" {
		return dir, nil
	}
	dir, err := w.newTempDir("vsixctl-scratch-*")
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.scratch = dir
	w.mu.Unlock()
	return dir, nil
}

// joinWithin joins a validated archive path onto root and checks the
// result stays under root, both textually and on disk: no existing
// component below root may be a symlink.
func joinWithin(root, p string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(p))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &SecurityError{Kind: ErrPathTraversal, Op: "write", Path: p}
	}
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", &SecurityError{Kind: ErrPathTraversal, Op: "write", Path: p}
		}
	}
	return target, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	if ra, err := filepath.EvalSymlinks(absA); err == nil {
		absA = ra
	}
	if rb, err := filepath.EvalSymlinks(absB); err == nil {
		absB = rb
	}
	return absA == absB
}
