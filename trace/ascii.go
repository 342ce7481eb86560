package trace

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/tebeka/atexit"
)

// ASCIIWriter writes one line per record.
type ASCIIWriter struct {
	w      *bufio.Writer
	closer io.Closer
	err    error
}

// NewASCIIWriter writes records to w.
func NewASCIIWriter(w io.Writer) *ASCIIWriter {
	return &ASCIIWriter{w: bufio.NewWriter(w)}
}

// CreateASCIIFile creates the file at path and writes records to it. The file
// must not exist. Buffered lines are flushed when the program exits through
// atexit.
func CreateASCIIFile(path string) (*ASCIIWriter, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("trace file %s already exists", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := NewASCIIWriter(f)
	w.closer = f

	atexit.Register(func() { _ = w.Close() })

	return w, nil
}

// Record writes r. Write errors are reported by Flush and Close.
func (w *ASCIIWriter) Record(r Record) {
	if w.err != nil {
		return
	}

	_, w.err = fmt.Fprintln(w.w, r.String())
}

// Flush writes the buffered lines.
func (w *ASCIIWriter) Flush() error {
	if w.err != nil {
		return w.err
	}

	return w.w.Flush()
}

// Close flushes and closes the underlying file, if any. Calling Close twice
// is safe.
func (w *ASCIIWriter) Close() error {
	err := w.Flush()

	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}

	return err
}

// DigestSink hashes the ASCII rendering of every record. Two runs produce the
// same digest only if they produce byte-identical ASCII traces.
type DigestSink struct {
	h     hash.Hash
	count int
}

// NewDigestSink creates a DigestSink.
func NewDigestSink() *DigestSink {
	return &DigestSink{h: sha256.New()}
}

// Record hashes r.
func (d *DigestSink) Record(r Record) {
	d.count++
	_, _ = io.WriteString(d.h, r.String()+"\n")
}

// Count returns the number of records hashed.
func (d *DigestSink) Count() int {
	return d.count
}

// Sum returns the hex encoded SHA-256 of the trace so far.
func (d *DigestSink) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
