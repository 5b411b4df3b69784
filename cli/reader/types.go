// Package reader builds the read-side payloads of the vsixctl CLI.
//
// Every payload is rendered identically by json/table/yaml output and by
// the TUI; the TUI never shows data a payload does not carry.
package reader

// ExtensionSummary is the payload of "inspect" (view inspect_extension).
type ExtensionSummary struct {
	Source       string        `json:"source" yaml:"source"`
	Manifest     string        `json:"manifest" yaml:"manifest"`
	Publisher    string        `json:"publisher" yaml:"publisher"`
	ExtensionID  string        `json:"extension_id" yaml:"extension_id"`
	Version      string        `json:"version" yaml:"version"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Public       bool          `json:"public" yaml:"public"`
	GalleryFlags []string      `json:"gallery_flags" yaml:"gallery_flags"`
	Files        []string      `json:"files" yaml:"files"`
	Tasks        []TaskSummary `json:"tasks" yaml:"tasks"`
	Valid        bool          `json:"valid" yaml:"valid"`
	Problems     []string      `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// TaskSummary describes one task contribution.
type TaskSummary struct {
	Dir          string `json:"dir" yaml:"dir"`
	Contribution string `json:"contribution" yaml:"contribution"`
	Name         string `json:"name" yaml:"name"`
	FriendlyName string `json:"friendly_name,omitempty" yaml:"friendly_name,omitempty"`
	ID           string `json:"id" yaml:"id"`
	Version      string `json:"version" yaml:"version"`
	Inputs       int    `json:"inputs" yaml:"inputs"`
}

// HistoryItem is one row of "history".
type HistoryItem struct {
	Kind        string `json:"kind" yaml:"kind"`
	Time        string `json:"time" yaml:"time"`
	Command     string `json:"command" yaml:"command"`
	Publisher   string `json:"publisher" yaml:"publisher"`
	ExtensionID string `json:"extension_id" yaml:"extension_id"`
	// Detail is the exit code for invocations and the version for packages.
	Detail       string `json:"detail" yaml:"detail"`
	InvocationID string `json:"invocation_id" yaml:"invocation_id"`
}

// HistoryStats is the payload of "history --stats" (view stats_history).
type HistoryStats struct {
	Total       int            `json:"total" yaml:"total"`
	Invocations int            `json:"invocations" yaml:"invocations"`
	Succeeded   int            `json:"succeeded" yaml:"succeeded"`
	Failed      int            `json:"failed" yaml:"failed"`
	Packages    int            `json:"packages" yaml:"packages"`
	Published   int            `json:"published" yaml:"published"`
	ByCommand   map[string]int `json:"by_command" yaml:"by_command"`
}
