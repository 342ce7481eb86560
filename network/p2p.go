package network

import (
	"fmt"

	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
)

type txDoneEvent struct {
	tx *transmitter
}

type deliverEvent struct {
	frame *Frame
	to    *Node
}

// transmitter serializes the frames of one direction of a point-to-point
// link in FIFO order.
type transmitter struct {
	from, to *Node

	busy       bool
	queue      []*Frame
	backlogEnd timing.VTimeInSec

	Drops uint64
}

// PointToPointLink is a full-duplex link between exactly two nodes. Each
// direction owns a transmitter so traffic in one direction never delays the
// other.
type PointToPointLink struct {
	linkBase

	capacity int
	txs      [2]*transmitter
}

var _ Link = (*PointToPointLink)(nil)

// Drops returns the number of frames discarded because a transmit queue was
// full.
func (l *PointToPointLink) Drops() uint64 {
	return l.txs[0].Drops + l.txs[1].Drops
}

// QueueCapacity returns how many frames may wait per direction. Zero means
// unbounded.
func (l *PointToPointLink) QueueCapacity() int {
	return l.capacity
}

// QueueLen returns the number of frames waiting in both directions.
func (l *PointToPointLink) QueueLen() int {
	return len(l.txs[0].queue) + len(l.txs[1].queue)
}

// Peer returns the node at the other end of the link.
func (l *PointToPointLink) Peer(n *Node) *Node {
	switch n {
	case l.endpoints[0]:
		return l.endpoints[1]
	case l.endpoints[1]:
		return l.endpoints[0]
	}

	return nil
}

// Transmit queues f on the transmitter of from. It returns the time from now
// until f reaches the peer. A frame that finds the queue full is dropped and
// a zero delay is returned.
func (l *PointToPointLink) Transmit(
	f *Frame,
	from *Node,
) (timing.VTimeInSec, error) {
	if err := l.frameMustBeValid(f, from); err != nil {
		return 0, err
	}

	tx := l.txs[0]
	if from == l.endpoints[1] {
		tx = l.txs[1]
	}

	now := l.engine.CurrentTime()
	l.invoke(HookPosLinkEnqueue, f, from, "")

	if tx.busy {
		if l.capacity > 0 && len(tx.queue) >= l.capacity {
			tx.Drops++
			l.invoke(HookPosLinkDrop, f, from, DropQueueFull)

			return 0, nil
		}

		tx.queue = append(tx.queue, f)
	} else if err := l.startTx(tx, f); err != nil {
		return 0, err
	}

	start := max(now, tx.backlogEnd)
	tx.backlogEnd = start + l.rate.SerializationDelay(f.PayloadSize)

	return tx.backlogEnd + l.delay - now, nil
}

func (l *PointToPointLink) startTx(tx *transmitter, f *Frame) error {
	now := l.engine.CurrentTime()
	ser := l.rate.SerializationDelay(f.PayloadSize)

	tx.busy = true
	l.invoke(HookPosLinkTxStart, f, tx.from, "")

	err := l.schedule(&txDoneEvent{tx: tx}, now+ser)
	if err != nil {
		return err
	}

	return l.schedule(&deliverEvent{frame: f, to: tx.to}, now+ser+l.delay)
}

// Handle processes the events scheduled by the link.
func (l *PointToPointLink) Handle(event any) error {
	switch e := event.(type) {
	case *txDoneEvent:
		return l.handleTxDone(e)
	case *deliverEvent:
		l.invoke(HookPosLinkDeliver, e.frame, e.to, "")
		return e.to.Receive(e.frame, l)
	default:
		return fmt.Errorf("link %s: unknown event type: %T", l.name, event)
	}
}

func (l *PointToPointLink) handleTxDone(e *txDoneEvent) error {
	tx := e.tx
	tx.busy = false

	if len(tx.queue) == 0 {
		return nil
	}

	next := tx.queue[0]
	tx.queue[0] = nil
	tx.queue = tx.queue[1:]

	return l.startTx(tx, next)
}

// PointToPointBuilder builds point-to-point links.
type PointToPointBuilder struct {
	engine   timing.EventScheduler
	rate     DataRate
	delay    timing.VTimeInSec
	capacity int
	id       LinkID
}

// MakePointToPointBuilder returns a builder with no engine and zero rate.
func MakePointToPointBuilder() PointToPointBuilder {
	return PointToPointBuilder{}
}

// WithEngine sets the engine that schedules the link events.
func (b PointToPointBuilder) WithEngine(e timing.EventScheduler) PointToPointBuilder {
	b.engine = e
	return b
}

// WithDataRate sets the link rate.
func (b PointToPointBuilder) WithDataRate(r DataRate) PointToPointBuilder {
	b.rate = r
	return b
}

// WithPropagationDelay sets the one-way propagation delay.
func (b PointToPointBuilder) WithPropagationDelay(
	d timing.VTimeInSec,
) PointToPointBuilder {
	b.delay = d
	return b
}

// WithQueueCapacity bounds the number of frames waiting per direction.
func (b PointToPointBuilder) WithQueueCapacity(n int) PointToPointBuilder {
	b.capacity = n
	return b
}

// WithID sets the link ID.
func (b PointToPointBuilder) WithID(id LinkID) PointToPointBuilder {
	b.id = id
	return b
}

// Build creates the link and attaches it to a and b.
func (b PointToPointBuilder) Build(
	name string,
	a, z *Node,
) (*PointToPointLink, error) {
	err := validateLinkConfig("point-to-point",
		b.engine, b.rate, b.delay, b.capacity, []*Node{a, z})
	if err != nil {
		return nil, err
	}

	l := &PointToPointLink{capacity: b.capacity}
	l.linkBase = linkBase{
		HookableBase: hooking.NewHookableBase(),
		self:         l,
		id:           b.id,
		name:         name,
		engine:       b.engine,
		rate:         b.rate,
		delay:        b.delay,
		endpoints:    []*Node{a, z},
	}
	l.txs[0] = &transmitter{from: a, to: z}
	l.txs[1] = &transmitter{from: z, to: a}

	a.attach(l)
	z.attach(l)

	return l, nil
}
