package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/vsixctl/iox"
)

// metaFileName marks a complete tool cache entry. It sits next to the
// entry directory so a partially copied tree is never found.
const metaFileName = ".toolmeta"

// ToolMeta describes a cached tool. It is stored msgpack-encoded.
type ToolMeta struct {
	Tool     string    `msgpack:"tool"`
	Version  string    `msgpack:"version"`
	Arch     string    `msgpack:"arch"`
	Source   string    `msgpack:"source"`
	CachedAt time.Time `msgpack:"cached_at"`
}

func (h *Host) toolDir(tool, version string) string {
	return filepath.Join(h.cacheRoot, sanitizeSegment(tool), sanitizeSegment(version), runtime.GOARCH)
}

// FindCachedTool returns the cache directory of tool at version, or "" when
// it is not cached.
func (h *Host) FindCachedTool(tool, version string) string {
	if tool == "" || version == "" {
		return ""
	}
	dir := h.toolDir(tool, version)
	meta, err := readToolMeta(dir + metaFileName)
	if err != nil {
		return ""
	}
	if meta.Tool != tool || meta.Version != version {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	h.Debug(fmt.Sprintf("found %s %s in tool cache: %s", tool, version, dir))
	return dir
}

// CacheDir copies the tree at src into the tool cache and returns the cache
// directory. An existing entry for the same tool and version is replaced.
func (h *Host) CacheDir(src, tool, version string) (string, error) {
	if tool == "" || version == "" {
		return "", errors.New("cache dir: tool and version are required")
	}
	dir := h.toolDir(tool, version)
	marker := dir + metaFileName

	if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := copyTree(src, dir); err != nil {
		return "", fmt.Errorf("cache %s %s: %w", tool, version, err)
	}

	data, err := msgpack.Marshal(&ToolMeta{
		Tool:     tool,
		Version:  version,
		Arch:     runtime.GOARCH,
		Source:   src,
		CachedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := iox.WriteFileAtomic(marker, data, 0o644); err != nil {
		return "", err
	}
	h.Debug(fmt.Sprintf("cached %s %s at %s", tool, version, dir))
	return dir, nil
}

// DownloadTool fetches url into a temp file and returns its path.
func (h *Host) DownloadTool(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer iox.DiscardClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "vsixctl-download-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	h.Debug("downloaded " + url + " to " + f.Name())
	return f.Name(), nil
}

func readToolMeta(path string) (*ToolMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta ToolMeta
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &meta, nil
}

// copyTree copies regular files and directories from src to dst,
// preserving file modes. src may also be a single file.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return copyFile(src, filepath.Join(dst, filepath.Base(src)), info.Mode())
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(p, target, fi.Mode())
		}
		return nil
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)
	return iox.WriteAtomic(dst, mode.Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func sanitizeSegment(s string) string {
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
}
