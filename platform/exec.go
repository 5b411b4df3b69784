package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ExecOptions configures a subprocess.
type ExecOptions struct {
	// Stdout and Stderr receive the streams. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
	// Env entries ("KEY=value") are appended to the inherited environment
	// and win over inherited duplicates.
	Env []string
	// Cwd is the working directory. Empty inherits.
	Cwd string
}

// Exec runs tool with args and waits for it. A non-zero exit is reported
// through the exit code, not the error; the error is set only when the
// process could not be started or waited on.
func (h *Host) Exec(ctx context.Context, tool string, args []string, opts ExecOptions) (int, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	if len(opts.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), opts.Env...))
	}
	cmd.Dir = opts.Cwd
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	h.Debug("exec: " + FormatCommandLine(tool, args))

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", tool, err)
	}
	return exitCode(cmd.Wait())
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("wait failed: %w", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
		return status.ExitStatus(), nil
	}
	return -1, nil
}

// FormatCommandLine renders tool and args as one shell-like line. Arguments
// with spaces or quotes are double-quoted.
func FormatCommandLine(tool string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(tool))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if !strings.ContainsAny(a, " \t\"'") {
		return a
	}
	return `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
