// Package vsix reads, edits and writes Azure DevOps extension packages.
//
// A package is either a VSIX zip archive or an unpacked directory with the
// same layout. Every path that reaches the filesystem or the archive passes
// through ValidatePath first; nothing is extracted implicitly.
package vsix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pithecene-io/vsixctl/iox"
	"github.com/pithecene-io/vsixctl/types"
)

// Well-known entry names.
const (
	ContentTypesPath = "[Content_Types].xml"
	VSIXManifestPath = "extension.vsixmanifest"
	TaskManifestFile = "task.json"
	defaultManifest  = "vss-extension.json"
	packagedManifest = "extension.vsomanifest"
)

// ManifestNames lists the extension manifest candidates in lookup order.
var ManifestNames = []string{defaultManifest, packagedManifest}

// TaskInfo describes one task contribution and its parsed task.json.
type TaskInfo struct {
	// Name is the task directory, taken from the contribution's
	// properties.name.
	Name           string
	ContributionID string
	// Path is the archive path of task.json.
	Path     string
	Manifest *types.TaskManifest
}

// Reader gives read-only access to a package.
type Reader struct {
	source string
	c      container
	dir    bool

	// index maps normalized paths to raw entry names.
	index map[string]string

	mu           sync.Mutex
	manifest     *types.ExtensionManifest
	manifestPath string
	closed       bool
}

// Open opens a VSIX archive.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	z, err := openZip(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: not a valid archive: %w", path, err)
	}
	return newReader(path, z, false), nil
}

// OpenDir opens an unpacked package directory.
func OpenDir(root string) (*Reader, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", root, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open %s: not a directory", root)
	}
	d, err := openDir(root)
	if err != nil {
		return nil, err
	}
	return newReader(root, d, true), nil
}

// OpenAny opens path as a directory when it is one, otherwise as an archive.
func OpenAny(path string) (*Reader, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return OpenDir(path)
	}
	return Open(path)
}

func newReader(source string, c container, dir bool) *Reader {
	r := &Reader{source: source, c: c, dir: dir, index: make(map[string]string)}
	for _, raw := range c.Names() {
		norm := NormalizePath(raw)
		if _, dup := r.index[norm]; dup {
			continue
		}
		r.index[norm] = raw
	}
	return r
}

// Source returns the archive path or directory root the reader was opened on.
func (r *Reader) Source() string { return r.source }

// IsDir reports whether the reader is backed by a directory.
func (r *Reader) IsDir() bool { return r.dir }

// ListFiles returns every file entry, normalized and sorted. Entry names
// containing a null byte fail the whole listing; other suspicious names are
// listed and rejected only when read.
func (r *Reader) ListFiles() ([]string, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(r.index))
	for _, raw := range r.c.Names() {
		if strings.IndexByte(raw, 0) >= 0 {
			return nil, &SecurityError{Kind: ErrNullByte, Op: "listFiles", Path: raw}
		}
	}
	for norm := range r.index {
		out = append(out, norm)
	}
	sort.Strings(out)
	return out, nil
}

// Has reports whether a normalized entry exists. It does not validate.
func (r *Reader) Has(p string) bool {
	_, ok := r.index[NormalizePath(p)]
	return ok
}

// ReadFile returns the bytes of the entry at p after validating p.
func (r *Reader) ReadFile(p string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	norm, err := validatePath("readFile", p)
	if err != nil {
		return nil, err
	}
	return r.readNormalized("readFile", norm)
}

// ReadText is ReadFile decoded as UTF-8 text with any byte-order mark removed.
func (r *Reader) ReadText(p string) (string, error) {
	data, err := r.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(trimBOM(data)), nil
}

func (r *Reader) readNormalized(op, norm string) ([]byte, error) {
	raw, ok := r.index[norm]
	if !ok {
		return nil, notFound(op, norm)
	}
	return r.readRaw(raw)
}

func (r *Reader) readRaw(raw string) ([]byte, error) {
	rc, err := r.c.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", raw, err)
	}
	defer iox.DiscardClose(rc)
	data, err := readAllLimited(rc, MaxEntrySize)
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", raw, err)
	}
	return data, nil
}

// ReadExtensionManifest parses the extension manifest, trying each of
// ManifestNames in order. The result is cached; callers must not mutate it.
func (r *Reader) ReadExtensionManifest() (*types.ExtensionManifest, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manifest != nil {
		return r.manifest, nil
	}

	for _, name := range ManifestNames {
		if _, ok := r.index[name]; !ok {
			continue
		}
		data, err := r.readNormalized("readExtensionManifest", name)
		if err != nil {
			return nil, err
		}
		var m types.ExtensionManifest
		if err := json.Unmarshal(trimBOM(data), &m); err != nil {
			return nil, &ParseError{Path: name, Err: err}
		}
		r.manifest = &m
		r.manifestPath = name
		return r.manifest, nil
	}
	return nil, fmt.Errorf("extension manifest (tried %s): %w", strings.Join(ManifestNames, ", "), ErrNotFound)
}

// ManifestPath returns the entry the extension manifest was loaded from.
func (r *Reader) ManifestPath() (string, error) {
	if _, err := r.ReadExtensionManifest(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifestPath, nil
}

// TasksInfo lists the task contributions together with their parsed
// task.json. Contributions whose task.json is absent are skipped; a task
// path that fails validation or a malformed task.json is an error.
func (r *Reader) TasksInfo() ([]TaskInfo, error) {
	m, err := r.ReadExtensionManifest()
	if err != nil {
		return nil, err
	}

	var out []TaskInfo
	for _, c := range m.TaskContributions() {
		dir := c.TaskDir()
		taskPath, err := validatePath("getTasksInfo", path.Join(dir, TaskManifestFile))
		if err != nil {
			return nil, err
		}
		if _, ok := r.index[taskPath]; !ok {
			continue
		}
		tm, err := r.readTask(taskPath)
		if err != nil {
			return nil, err
		}
		out = append(out, TaskInfo{
			Name:           NormalizePath(dir),
			ContributionID: c.ID,
			Path:           taskPath,
			Manifest:       tm,
		})
	}
	return out, nil
}

// ReadTaskManifests returns the parsed task.json of every task contribution.
func (r *Reader) ReadTaskManifests() ([]*types.TaskManifest, error) {
	infos, err := r.TasksInfo()
	if err != nil {
		return nil, err
	}
	out := make([]*types.TaskManifest, len(infos))
	for i := range infos {
		out[i] = infos[i].Manifest
	}
	return out, nil
}

// ReadTaskManifest reads <dir>/task.json. A missing file is ErrNotFound.
func (r *Reader) ReadTaskManifest(dir string) (*types.TaskManifest, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	taskPath, err := validatePath("readTaskManifest", path.Join(dir, TaskManifestFile))
	if err != nil {
		return nil, err
	}
	if _, ok := r.index[taskPath]; !ok {
		return nil, notFound("readTaskManifest", taskPath)
	}
	return r.readTask(taskPath)
}

func (r *Reader) readTask(taskPath string) (*types.TaskManifest, error) {
	data, err := r.readNormalized("readTaskManifest", taskPath)
	if err != nil {
		return nil, err
	}
	var tm types.TaskManifest
	if err := json.Unmarshal(trimBOM(data), &tm); err != nil {
		return nil, &ParseError{Path: taskPath, Err: err}
	}
	return &tm, nil
}

// Close releases the underlying archive. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.c.Close()
}

func (r *Reader) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("reader %s: %w", r.source, ErrClosed)
	}
	return nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
