// Package jsonstream separates a tool's JSON result from the log text
// interleaved with it on the same output stream.
//
// The stream is expected to carry free text and "[command]" echo lines
// first, then a single JSON value that runs until the stream closes.
package jsonstream

import (
	"encoding/json"
	"strings"
)

// CommandPrefix marks a command echo line. Such lines are always logged.
const CommandPrefix = "[command]"

// Sink receives one log line at a time, without the trailing newline.
type Sink func(line string)

// Demux accumulates one invocation's output. It is not safe for concurrent
// writers; os/exec delivers a single stream from a single goroutine.
type Demux struct {
	sink     Sink
	inJSON   bool
	json     strings.Builder
	messages []string
}

// New returns a Demux that forwards log lines to sink. A nil sink drops them.
func New(sink Sink) *Demux {
	if sink == nil {
		sink = func(string) {}
	}
	return &Demux{sink: sink}
}

// Write implements io.Writer; each call is one chunk. It never fails.
func (d *Demux) Write(p []byte) (int, error) {
	d.WriteChunk(string(p))
	return len(p), nil
}

// WriteChunk consumes one chunk of output.
func (d *Demux) WriteChunk(chunk string) {
	if chunk == "" {
		return
	}
	if d.inJSON {
		d.json.WriteString(chunk)
		return
	}
	if strings.HasPrefix(chunk, CommandPrefix) {
		d.forward(chunk)
		return
	}
	if c := chunk[0]; c != '{' && c != '[' {
		d.messages = append(d.messages, chunk)
		d.forward(chunk)
		return
	}
	d.inJSON = true
	d.json.WriteString(chunk)
}

func (d *Demux) forward(chunk string) {
	for _, line := range strings.Split(chunk, "\n") {
		if line != "" {
			d.sink(line)
		}
	}
}

// JSONString returns the accumulated JSON text.
func (d *Demux) JSONString() string {
	return d.json.String()
}

// Messages returns the non-JSON chunks in arrival order. Command echo
// chunks are logged but not collected.
func (d *Demux) Messages() []string {
	return append([]string(nil), d.messages...)
}

// InJSON reports whether a JSON value has started.
func (d *Demux) InJSON() bool {
	return d.inJSON
}

// ParseJSON decodes the accumulated JSON. The bool is false when nothing was
// accumulated or the text does not parse; the parse failure is reported
// through the sink rather than returned.
func (d *Demux) ParseJSON() (any, bool) {
	if d.json.Len() == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(d.json.String()), &v); err != nil {
		d.sink("Failed to parse JSON output: " + err.Error())
		return nil, false
	}
	return v, true
}
