// Package trace records what happens to frames on links and in applications,
// and writes those records to memory, text files or SQLite databases.
package trace

import (
	"fmt"

	"github.com/sarchlab/netsim/idgen"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
)

// Kind tells what happened to a frame.
type Kind string

// Record kinds. The single letters follow the usual network trace
// conventions.
const (
	KindEnqueue    Kind = "+"
	KindTxStart    Kind = "t"
	KindReceive    Kind = "r"
	KindDrop       Kind = "d"
	KindAppSend    Kind = "s"
	KindAppReceive Kind = "a"
)

// NoLink is the link ID of records produced by applications.
const NoLink network.LinkID = -1

// A Record is one traced frame event.
type Record struct {
	Kind    Kind              `json:"kind"`
	Time    timing.VTimeInSec `json:"time"`
	NodeID  network.NodeID    `json:"node"`
	LinkID  network.LinkID    `json:"link"`
	Bytes   int               `json:"bytes"`
	FrameID idgen.ID          `json:"frame"`
}

// String renders the record as one line of the ASCII trace, without the
// trailing newline.
func (r Record) String() string {
	link := "l-"
	if r.LinkID != NoLink {
		link = fmt.Sprintf("l%d", r.LinkID)
	}

	return fmt.Sprintf("%s %.9f n%d %s %d #%d",
		r.Kind, float64(r.Time), r.NodeID, link, r.Bytes, r.FrameID)
}

// A Sink receives trace records.
type Sink interface {
	Record(r Record)
}

// A Flusher writes buffered records to their destination.
type Flusher interface {
	Flush() error
}

// Flush flushes s if it buffers records.
func Flush(s Sink) error {
	if f, ok := s.(Flusher); ok {
		return f.Flush()
	}

	return nil
}
