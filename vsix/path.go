package vsix

import (
	"fmt"
	"path"
	"strings"
)

// ValidatePath checks an archive-relative path and returns its normalized
// form. Checks run in a fixed order and the first violation wins:
//
//  1. absolute: leading "/" or "\" or a drive letter such as "C:"
//  2. traversal: any segment equal to ".." (either separator)
//  3. null byte anywhere in the string
//
// Rejections are *SecurityError values matching ErrSecurity.
func ValidatePath(p string) (string, error) {
	return validatePath("", p)
}

func validatePath(op, p string) (string, error) {
	if kind := securityViolation(p); kind != nil {
		return "", &SecurityError{Kind: kind, Op: op, Path: p}
	}
	norm := NormalizePath(p)
	if norm == "" || norm == "." {
		if op == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		return "", fmt.Errorf("%s: %w: %q", op, ErrInvalidPath, p)
	}
	return norm, nil
}

func securityViolation(p string) error {
	switch {
	case isAbsolute(p):
		return ErrAbsolutePath
	case hasDotDotSegment(p):
		return ErrPathTraversal
	case strings.IndexByte(p, 0) >= 0:
		return ErrNullByte
	}
	return nil
}

func isAbsolute(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return true
	}
	return len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0])
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func hasDotDotSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// NormalizePath converts separators to "/" and cleans the result.
// It performs no security checks.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return p
}
