package network

import (
	"fmt"

	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
)

type channelFreeEvent struct {
	tx *sharedTx
}

type sharedTx struct {
	frame    *Frame
	from     *Node
	collided bool
}

// SharedMediumLink is a broadcast channel shared by two or more nodes. A
// frame keeps the channel busy for its serialization time plus the
// propagation delay and reaches every other attached node when the channel
// frees.
//
// Without collision detection, frames offered while the channel is busy wait
// in FIFO order. With collision detection, such a frame collides with the one
// in flight and both are lost.
type SharedMediumLink struct {
	linkBase

	collisionDetection bool

	current    *sharedTx
	queue      []*sharedTx
	backlogEnd timing.VTimeInSec

	Collisions uint64
	Drops      uint64
}

var _ Link = (*SharedMediumLink)(nil)

// CollisionDetection reports whether concurrent transmissions collide.
func (l *SharedMediumLink) CollisionDetection() bool {
	return l.collisionDetection
}

// Busy reports whether a frame currently occupies the channel.
func (l *SharedMediumLink) Busy() bool {
	return l.current != nil
}

// QueueLen returns the number of frames waiting for the channel.
func (l *SharedMediumLink) QueueLen() int {
	return len(l.queue)
}

// Transmit offers f to the channel on behalf of from. It returns the time
// from now until every other node has received f.
func (l *SharedMediumLink) Transmit(
	f *Frame,
	from *Node,
) (timing.VTimeInSec, error) {
	if err := l.frameMustBeValid(f, from); err != nil {
		return 0, err
	}

	now := l.engine.CurrentTime()
	l.invoke(HookPosLinkEnqueue, f, from, "")

	tx := &sharedTx{frame: f, from: from}

	if l.current != nil {
		if l.collisionDetection {
			return 0, l.collide(tx)
		}

		l.queue = append(l.queue, tx)
	} else if err := l.startTx(tx); err != nil {
		return 0, err
	}

	start := max(now, l.backlogEnd)
	l.backlogEnd = start + l.busyTime(f)

	return l.backlogEnd - now, nil
}

func (l *SharedMediumLink) busyTime(f *Frame) timing.VTimeInSec {
	return l.rate.SerializationDelay(f.PayloadSize) + l.delay
}

func (l *SharedMediumLink) collide(tx *sharedTx) error {
	l.Collisions++

	l.Drops++
	l.invoke(HookPosLinkDrop, tx.frame, tx.from, DropCollision)

	inFlight := l.current
	if !inFlight.collided {
		inFlight.collided = true
		l.Drops++
		l.invoke(HookPosLinkDrop, inFlight.frame, inFlight.from, DropCollision)
	}

	return fmt.Errorf("%w: link %s, node %d at %s",
		ErrCollision, l.name, tx.from.ID(), l.engine.CurrentTime())
}

func (l *SharedMediumLink) startTx(tx *sharedTx) error {
	l.current = tx
	l.invoke(HookPosLinkTxStart, tx.frame, tx.from, "")

	return l.schedule(&channelFreeEvent{tx: tx},
		l.engine.CurrentTime()+l.busyTime(tx.frame))
}

// Handle processes the events scheduled by the link.
func (l *SharedMediumLink) Handle(event any) error {
	switch e := event.(type) {
	case *channelFreeEvent:
		return l.handleChannelFree(e)
	default:
		return fmt.Errorf("link %s: unknown event type: %T", l.name, event)
	}
}

func (l *SharedMediumLink) handleChannelFree(e *channelFreeEvent) error {
	l.current = nil

	if len(l.queue) > 0 {
		next := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]

		if err := l.startTx(next); err != nil {
			return err
		}
	}

	if e.tx.collided {
		return nil
	}

	for _, n := range l.endpoints {
		if n == e.tx.from {
			continue
		}

		l.invoke(HookPosLinkDeliver, e.tx.frame, n, "")

		if err := n.Receive(e.tx.frame, l); err != nil {
			return err
		}
	}

	return nil
}

// SharedMediumBuilder builds shared-medium links.
type SharedMediumBuilder struct {
	engine             timing.EventScheduler
	rate               DataRate
	delay              timing.VTimeInSec
	collisionDetection bool
	id                 LinkID
}

// MakeSharedMediumBuilder returns a builder for a permissive channel.
func MakeSharedMediumBuilder() SharedMediumBuilder {
	return SharedMediumBuilder{}
}

// WithEngine sets the engine that schedules the link events.
func (b SharedMediumBuilder) WithEngine(e timing.EventScheduler) SharedMediumBuilder {
	b.engine = e
	return b
}

// WithDataRate sets the channel rate.
func (b SharedMediumBuilder) WithDataRate(r DataRate) SharedMediumBuilder {
	b.rate = r
	return b
}

// WithPropagationDelay sets the propagation delay across the channel.
func (b SharedMediumBuilder) WithPropagationDelay(
	d timing.VTimeInSec,
) SharedMediumBuilder {
	b.delay = d
	return b
}

// WithCollisionDetection makes concurrent transmissions collide.
func (b SharedMediumBuilder) WithCollisionDetection(on bool) SharedMediumBuilder {
	b.collisionDetection = on
	return b
}

// WithID sets the link ID.
func (b SharedMediumBuilder) WithID(id LinkID) SharedMediumBuilder {
	b.id = id
	return b
}

// Build creates the channel and attaches every node to it.
func (b SharedMediumBuilder) Build(
	name string,
	nodes ...*Node,
) (*SharedMediumLink, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: shared link %s needs at least 2 nodes, got %d",
			ErrInvalidConfiguration, name, len(nodes))
	}

	err := validateLinkConfig("shared", b.engine, b.rate, b.delay, 0, nodes)
	if err != nil {
		return nil, err
	}

	l := &SharedMediumLink{collisionDetection: b.collisionDetection}
	l.linkBase = linkBase{
		HookableBase: hooking.NewHookableBase(),
		self:         l,
		id:           b.id,
		name:         name,
		engine:       b.engine,
		rate:         b.rate,
		delay:        b.delay,
		endpoints:    append([]*Node(nil), nodes...),
	}

	for _, n := range nodes {
		n.attach(l)
	}

	return l, nil
}
