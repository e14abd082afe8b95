// Package traceio provides the tracer-facing half of the Protocol
// Parser & Dispatcher: a blocking reader abstraction over
// a per-thread OS pipe, kept separate from internal/protocol so tests can
// drive the parser without a real pipe.
package traceio

import "io"

// Reader reads raw trace bytes. Read blocks until data is available and
// returns bytesRead == -1 to signal the pipe has closed.
type Reader interface {
	Read() (bytesRead int, buf []byte)
}

// PipeReader adapts an io.Reader (a named pipe, in production) to Reader.
type PipeReader struct {
	r   io.Reader
	buf []byte
}

// NewPipeReader creates a PipeReader with the given read buffer size.
func NewPipeReader(r io.Reader, bufSize int) *PipeReader {
	return &PipeReader{r: r, buf: make([]byte, bufSize)}
}

// Read performs one blocking read, returning (-1, nil) on EOF or any
// other read error — both mean the tracer side is gone.
func (p *PipeReader) Read() (int, []byte) {
	n, _ := p.r.Read(p.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, p.buf[:n])
		return n, out
	}
	return -1, nil
}
