package vsix

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrSecurity matches every path-security rejection.
	ErrSecurity = errors.New("security violation")

	ErrAbsolutePath  = errors.New("absolute path not allowed")
	ErrPathTraversal = errors.New("path traversal detected")
	ErrNullByte      = errors.New("null byte in path")

	// ErrInvalidPath is returned for paths that are malformed but not
	// dangerous, such as the empty string.
	ErrInvalidPath = errors.New("invalid path")

	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("already closed")

	// ErrEntryTooLarge is returned when a single entry exceeds MaxEntrySize.
	ErrEntryTooLarge = errors.New("entry exceeds size limit")
)

// SecurityError describes a rejected path. Kind is one of ErrAbsolutePath,
// ErrPathTraversal or ErrNullByte.
type SecurityError struct {
	Kind error
	Op   string
	Path string
}

func (e *SecurityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("Security: %v: %q", e.Kind, e.Path)
	}
	return fmt.Sprintf("Security: %v: %s %q", e.Kind, e.Op, e.Path)
}

// Unwrap returns the violation kind.
func (e *SecurityError) Unwrap() error {
	return e.Kind
}

// Is reports a match against ErrSecurity in addition to the wrapped kind.
func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurity
}

// ParseError reports malformed JSON or XML inside a package.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsSecurityError reports whether err is a path-security rejection.
func IsSecurityError(err error) bool {
	return errors.Is(err, ErrSecurity)
}

func notFound(op, path string) error {
	return fmt.Errorf("%s %q: %w", op, path, ErrNotFound)
}
