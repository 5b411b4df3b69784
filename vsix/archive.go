package vsix

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pithecene-io/vsixctl/iox"
)

// MaxEntrySize bounds how much of a single entry is read into memory.
const MaxEntrySize int64 = 256 << 20

// entryInfo is the metadata carried over when an entry is rewritten.
type entryInfo struct {
	Method   uint16
	Modified time.Time
	Mode     fs.FileMode
}

// container is a package source: a zip archive or an unpacked directory.
// Names are raw as stored; callers normalize them.
type container interface {
	Names() []string
	Open(name string) (io.ReadCloser, error)
	Info(name string) entryInfo
	Close() error
}

type zipContainer struct {
	rc    *zip.ReadCloser
	names []string
	files map[string]*zip.File
}

func openZip(path string) (*zipContainer, error) {
	rc, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		if rc != nil {
			iox.DiscardClose(rc)
		}
		return nil, err
	}
	z := &zipContainer{rc: rc, files: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := z.files[f.Name]; dup {
			continue
		}
		z.names = append(z.names, f.Name)
		z.files[f.Name] = f
	}
	return z, nil
}

func (z *zipContainer) Names() []string { return z.names }

func (z *zipContainer) Open(name string) (io.ReadCloser, error) {
	f, ok := z.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f.Open()
}

func (z *zipContainer) Info(name string) entryInfo {
	f, ok := z.files[name]
	if !ok {
		return entryInfo{Method: zip.Deflate}
	}
	return entryInfo{Method: f.Method, Modified: f.Modified, Mode: f.Mode()}
}

func (z *zipContainer) Close() error { return z.rc.Close() }

type dirContainer struct {
	root  string
	names []string
	infos map[string]entryInfo
}

// openDir indexes regular files under root. Symlinks and other special
// files are not part of the package.
func openDir(root string) (*dirContainer, error) {
	d := &dirContainer{root: root, infos: make(map[string]entryInfo)}
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		d.names = append(d.names, name)
		d.infos[name] = entryInfo{Method: zip.Deflate, Modified: info.ModTime(), Mode: info.Mode()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	return d, nil
}

func (d *dirContainer) Names() []string { return d.names }

func (d *dirContainer) Open(name string) (io.ReadCloser, error) {
	if _, ok := d.infos[name]; !ok {
		return nil, fs.ErrNotExist
	}
	return os.Open(filepath.Join(d.root, filepath.FromSlash(name)))
}

func (d *dirContainer) Info(name string) entryInfo {
	info, ok := d.infos[name]
	if !ok {
		return entryInfo{Method: zip.Deflate}
	}
	return info
}

func (d *dirContainer) Close() error { return nil }

// readAllLimited reads r fully, failing once more than limit bytes arrive.
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrEntryTooLarge
	}
	return data, nil
}
