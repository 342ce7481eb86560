package network

import (
	"fmt"

	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
)

// A Link carries frames between the nodes attached to it.
type Link interface {
	hooking.Hookable
	timing.Handler

	ID() LinkID
	Name() string
	Endpoints() []*Node
	DataRate() DataRate
	PropagationDelay() timing.VTimeInSec

	// Transmit hands a frame to the link on behalf of from. It returns the
	// time between now and the delivery of the frame.
	Transmit(f *Frame, from *Node) (timing.VTimeInSec, error)
}

// HookPosLinkEnqueue marks a frame accepted by a link for transmission.
var HookPosLinkEnqueue = &hooking.HookPos{Name: "Link Enqueue"}

// HookPosLinkTxStart marks a frame starting to occupy the wire.
var HookPosLinkTxStart = &hooking.HookPos{Name: "Link Tx Start"}

// HookPosLinkDeliver marks a frame arriving at a node.
var HookPosLinkDeliver = &hooking.HookPos{Name: "Link Deliver"}

// HookPosLinkDrop marks a frame discarded by the link.
var HookPosLinkDrop = &hooking.HookPos{Name: "Link Drop"}

// DropReason tells why a link discarded a frame.
type DropReason string

// Drop reasons.
const (
	DropQueueFull DropReason = "queue-full"
	DropCollision DropReason = "collision"
)

// FrameEvent is the hook detail attached to every link hook. The hook item is
// the *Frame.
type FrameEvent struct {
	Link   Link
	Node   *Node
	Time   timing.VTimeInSec
	Reason DropReason
}

// linkBase holds what point-to-point and shared links have in common.
type linkBase struct {
	*hooking.HookableBase

	self      Link
	id        LinkID
	name      string
	engine    timing.EventScheduler
	rate      DataRate
	delay     timing.VTimeInSec
	endpoints []*Node
}

// ID returns the link ID.
func (l *linkBase) ID() LinkID {
	return l.id
}

// Name returns the link name.
func (l *linkBase) Name() string {
	return l.name
}

// Endpoints returns the attached nodes in attachment order.
func (l *linkBase) Endpoints() []*Node {
	return l.endpoints
}

// DataRate returns the link rate.
func (l *linkBase) DataRate() DataRate {
	return l.rate
}

// PropagationDelay returns the signal propagation time across the link.
func (l *linkBase) PropagationDelay() timing.VTimeInSec {
	return l.delay
}

func (l *linkBase) isAttached(n *Node) bool {
	for _, e := range l.endpoints {
		if e == n {
			return true
		}
	}

	return false
}

func (l *linkBase) frameMustBeValid(f *Frame, from *Node) error {
	if f == nil || f.PayloadSize < 0 {
		return fmt.Errorf("%w: link %s", ErrInvalidFrame, l.name)
	}

	if from == nil || !l.isAttached(from) {
		return fmt.Errorf("%w: link %s", ErrNotAttached, l.name)
	}

	return nil
}

func (l *linkBase) invoke(
	pos *hooking.HookPos,
	f *Frame,
	node *Node,
	reason DropReason,
) {
	if l.NumHooks() == 0 {
		return
	}

	l.InvokeHook(hooking.HookCtx{
		Domain: l.self,
		Pos:    pos,
		Item:   f,
		Detail: FrameEvent{
			Link:   l.self,
			Node:   node,
			Time:   l.engine.CurrentTime(),
			Reason: reason,
		},
	})
}

func (l *linkBase) schedule(evt any, t timing.VTimeInSec) error {
	_, err := l.engine.Schedule(timing.ScheduledEvent{
		Event:   evt,
		Time:    t,
		Handler: l.self,
	})

	return err
}

func validateLinkConfig(
	kind string,
	engine timing.EventScheduler,
	rate DataRate,
	delay timing.VTimeInSec,
	queueCapacity int,
	nodes []*Node,
) error {
	if engine == nil {
		return fmt.Errorf("%w: %s link needs an engine", ErrInvalidConfiguration, kind)
	}

	if rate == 0 {
		return fmt.Errorf("%w: %s link data rate must be positive", ErrInvalidConfiguration, kind)
	}

	if !delay.IsValid() {
		return fmt.Errorf("%w: %s link delay %g is not a finite non-negative time",
			ErrInvalidConfiguration, kind, float64(delay))
	}

	if queueCapacity < 0 {
		return fmt.Errorf("%w: %s link queue capacity %d is negative",
			ErrInvalidConfiguration, kind, queueCapacity)
	}

	seen := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return fmt.Errorf("%w: %s link has a nil endpoint", ErrInvalidConfiguration, kind)
		}

		if seen[n] {
			return fmt.Errorf("%w: node %d attached twice to a %s link",
				ErrInvalidConfiguration, n.ID(), kind)
		}
		seen[n] = true
	}

	return nil
}
