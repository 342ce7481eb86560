package network

import (
	"github.com/sarchlab/netsim/idgen"
	"github.com/sarchlab/netsim/timing"
)

// NodeID identifies a node within one simulation.
type NodeID int

// Broadcast is the destination that every node accepts.
const Broadcast NodeID = -1

// LinkID identifies a link within one simulation.
type LinkID int

// Port selects the receiver bound on a node.
type Port uint16

// A Frame is a unit of data carried across links.
type Frame struct {
	ID idgen.ID

	Src, Dst NodeID

	// NextHop is the link-layer destination on the link currently carrying
	// the frame. Nodes on a shared medium discard frames not meant for them.
	NextHop NodeID

	SrcPort, DstPort Port

	PayloadSize int
	Seq         uint64

	// SendTime is when the application created the frame.
	SendTime timing.VTimeInSec

	Hops   int
	IsEcho bool
}

// Clone returns a copy of the frame that keeps the same ID.
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// IsBroadcast reports whether the frame is addressed to every node.
func (f *Frame) IsBroadcast() bool {
	return f.Dst == Broadcast
}
