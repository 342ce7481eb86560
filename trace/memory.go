package trace

import "io"

// MemorySink keeps every record in memory.
type MemorySink struct {
	Records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends r.
func (s *MemorySink) Record(r Record) {
	s.Records = append(s.Records, r)
}

// Count returns the number of records of the given kind.
func (s *MemorySink) Count(kind Kind) int {
	n := 0

	for _, r := range s.Records {
		if r.Kind == kind {
			n++
		}
	}

	return n
}

// Filter returns the records accepted by keep, in recording order.
func (s *MemorySink) Filter(keep func(Record) bool) []Record {
	var out []Record

	for _, r := range s.Records {
		if keep(r) {
			out = append(out, r)
		}
	}

	return out
}

// Tee forwards every record to all of its sinks in order.
type Tee []Sink

// Record forwards r.
func (t Tee) Record(r Record) {
	for _, s := range t {
		s.Record(r)
	}
}

// Flush flushes every member that buffers records and returns the first
// error.
func (t Tee) Flush() error {
	var first error

	for _, s := range t {
		if err := Flush(s); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Close closes every member that holds a resource, flushing the others, and
// returns the first error.
func (t Tee) Close() error {
	var first error

	for _, s := range t {
		var err error
		if c, ok := s.(io.Closer); ok {
			err = c.Close()
		} else {
			err = Flush(s)
		}

		if err != nil && first == nil {
			first = err
		}
	}

	return first
}
