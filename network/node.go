package network

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/timing"
)

// A Receiver consumes frames delivered to a port of a node.
type Receiver interface {
	Receive(f *Frame, at *Node) error
}

// NodeStats counts what a node did with the frames it saw.
type NodeStats struct {
	Delivered  uint64 `json:"delivered"`
	Forwarded  uint64 `json:"forwarded"`
	Observed   uint64 `json:"observed"`
	NoReceiver uint64 `json:"no_receiver"`

	// ForwardLost counts forwarded frames lost to a collision on the next
	// link.
	ForwardLost uint64 `json:"forward_lost"`
}

type route struct {
	link    Link
	nextHop NodeID
}

// Node is an addressable endpoint holding links and bound receivers.
// Frames addressed to another node are forwarded along static routes.
type Node struct {
	id   NodeID
	name string

	links     []Link
	routes    map[NodeID]route
	receivers map[Port]Receiver

	Stats NodeStats
}

// NewNode creates a node without links.
func NewNode(id NodeID, name string) *Node {
	return &Node{
		id:        id,
		name:      name,
		routes:    make(map[NodeID]route),
		receivers: make(map[Port]Receiver),
	}
}

// ID returns the node ID.
func (n *Node) ID() NodeID {
	return n.id
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Links returns the links attached to the node in attachment order.
func (n *Node) Links() []Link {
	return n.links
}

func (n *Node) attach(l Link) {
	n.links = append(n.links, l)
}

func (n *Node) hasLink(l Link) bool {
	for _, own := range n.links {
		if own == l {
			return true
		}
	}

	return false
}

// Bind attaches a receiver to a port.
func (n *Node) Bind(port Port, r Receiver) error {
	if r == nil {
		return fmt.Errorf("%w: nil receiver on node %d port %d",
			ErrInvalidConfiguration, n.id, port)
	}

	if _, taken := n.receivers[port]; taken {
		return fmt.Errorf("%w: node %d port %d already bound",
			ErrInvalidConfiguration, n.id, port)
	}

	n.receivers[port] = r

	return nil
}

// SetRoute makes frames for dst leave through via towards nextHop.
func (n *Node) SetRoute(dst NodeID, via Link, nextHop NodeID) error {
	if via == nil || !n.hasLink(via) {
		return fmt.Errorf("%w: node %d routes to %d through a link it is not attached to",
			ErrInvalidConfiguration, n.id, dst)
	}

	n.routes[dst] = route{link: via, nextHop: nextHop}

	return nil
}

// Route returns the link and next hop used towards dst.
func (n *Node) Route(dst NodeID) (Link, NodeID, bool) {
	r, ok := n.routes[dst]
	return r.link, r.nextHop, ok
}

// Send transmits a frame towards its destination. Broadcast frames leave
// through the first attached link.
func (n *Node) Send(f *Frame) (timing.VTimeInSec, error) {
	if f.Dst == n.id {
		return 0, fmt.Errorf("%w: node %d sending to itself", ErrNoRoute, n.id)
	}

	if f.IsBroadcast() {
		if len(n.links) == 0 {
			return 0, fmt.Errorf("%w: node %d has no link", ErrNoRoute, n.id)
		}

		f.NextHop = Broadcast

		return n.links[0].Transmit(f, n)
	}

	r, ok := n.routes[f.Dst]
	if !ok {
		return 0, fmt.Errorf("%w: node %d to node %d", ErrNoRoute, n.id, f.Dst)
	}

	f.NextHop = r.nextHop

	return r.link.Transmit(f, n)
}

// Receive is called by a link when a frame reaches the node.
func (n *Node) Receive(f *Frame, _ Link) error {
	if f.NextHop != n.id && f.NextHop != Broadcast {
		n.Stats.Observed++
		return nil
	}

	if f.Dst != n.id && !f.IsBroadcast() {
		fwd := f.Clone()
		fwd.Hops++
		n.Stats.Forwarded++

		_, err := n.Send(fwd)
		if errors.Is(err, ErrCollision) {
			n.Stats.ForwardLost++
			return nil
		}

		return err
	}

	r, ok := n.receivers[f.DstPort]
	if !ok {
		n.Stats.NoReceiver++
		return nil
	}

	n.Stats.Delivered++

	return r.Receive(f, n)
}
