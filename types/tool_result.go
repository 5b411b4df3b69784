package types

import "time"

// ToolResult is the outcome of one external tool invocation.
// A non-zero ExitCode is data for the caller, not an error.
type ToolResult struct {
	// Args is the argument vector passed to the tool (secrets masked).
	Args []string `json:"args"`
	// ExitCode is the process exit code.
	ExitCode int `json:"exit_code"`
	// JSON is the parsed JSON payload; nil when capture was not requested
	// or the payload did not parse.
	JSON any `json:"json,omitempty"`
	// Stdout is the captured standard output.
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the captured standard error.
	Stderr string `json:"stderr,omitempty"`
	// Duration is the wall time of the invocation.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports a zero exit code.
func (r *ToolResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// HasJSON reports whether a JSON payload was captured and parsed.
func (r *ToolResult) HasJSON() bool {
	return r != nil && r.JSON != nil
}

// JSONObject returns the payload as an object, or nil.
func (r *ToolResult) JSONObject() map[string]any {
	if r == nil {
		return nil
	}
	obj, _ := r.JSON.(map[string]any)
	return obj
}
