package platform

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Which finds tool on PATH.
func (h *Host) Which(tool string) (string, error) {
	p, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH: %w", tool, err)
	}
	return p, nil
}

// Exists reports whether path exists.
func (h *Host) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads a file.
func (h *Host) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes a file, creating parent directories.
func (h *Host) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FindMatch returns the files under root matching any pattern, minus those
// matching a pattern prefixed with "!". Patterns use filepath.Match syntax
// against slash-separated paths relative to root; a "**/" segment matches
// any number of directories. Results are absolute and sorted.
func (h *Host) FindMatch(root string, patterns []string) ([]string, error) {
	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasPrefix(p, "!"):
			exclude = append(exclude, filepath.ToSlash(p[1:]))
		default:
			include = append(include, filepath.ToSlash(p))
		}
	}
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if _, err := matchGlob(p, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if anyMatch(include, rel) && !anyMatch(exclude, rel) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func anyMatch(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := matchGlob(p, rel); ok {
			return true
		}
	}
	return false
}

// matchGlob matches rel against pattern, expanding "**" segments.
func matchGlob(pattern, rel string) (bool, error) {
	pSegs := strings.Split(pattern, "/")
	rSegs := strings.Split(rel, "/")
	if rel == "" {
		rSegs = nil
	}
	return matchSegments(pSegs, rSegs)
}

func matchSegments(pattern, rel []string) (bool, error) {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(rel); i++ {
				ok, err := matchSegments(rest, rel[i:])
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil
		}
		if len(rel) == 0 {
			_, err := filepath.Match(pattern[0], "")
			return false, err
		}
		ok, err := filepath.Match(pattern[0], rel[0])
		if err != nil || !ok {
			return false, err
		}
		pattern, rel = pattern[1:], rel[1:]
	}
	return len(rel) == 0, nil
}
