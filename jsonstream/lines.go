package jsonstream

import (
	"bytes"
	"sync"
)

// LineWriter is an io.Writer that hands complete lines to a Sink. A
// trailing partial line is held until the next newline or Flush.
type LineWriter struct {
	mu   sync.Mutex
	sink Sink
	buf  bytes.Buffer
}

// NewLineWriter returns a LineWriter over sink. A nil sink drops lines.
func NewLineWriter(sink Sink) *LineWriter {
	if sink == nil {
		sink = func(string) {}
	}
	return &LineWriter{sink: sink}
}

// Write implements io.Writer. It never fails.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1)[:i], "\r"))
		if line != "" {
			w.sink(line)
		}
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		line := w.buf.String()
		w.buf.Reset()
		w.sink(line)
	}
}
