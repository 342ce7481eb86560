package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
	"gonum.org/v1/gonum/stat"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Dst     network.NodeID
	DstPort network.Port

	// SrcPort is bound on the sending node to receive echo replies.
	SrcPort network.Port

	PayloadSize int

	// Interval separates two packets. When it is zero, the interval is the
	// time DataRate needs to carry one payload.
	Interval timing.VTimeInSec
	DataRate network.DataRate

	// MaxPackets limits the number of packets sent. Zero means no limit.
	MaxPackets uint64

	// OnTime and OffTime alternate sending and silent periods. A nil OnTime
	// keeps the sender always on.
	OnTime  Distribution
	OffTime Distribution

	StartTime timing.VTimeInSec
	StopTime  timing.VTimeInSec
}

// PacketInterval returns the time between two packets.
func (c SenderConfig) PacketInterval() timing.VTimeInSec {
	if c.Interval > 0 || c.DataRate == 0 {
		return c.Interval
	}

	return c.DataRate.SerializationDelay(c.PayloadSize)
}

// Validate checks the configuration.
func (c SenderConfig) Validate() error {
	if c.PayloadSize < 0 {
		return fmt.Errorf("%w: negative payload size %d",
			network.ErrInvalidConfiguration, c.PayloadSize)
	}

	if !c.Interval.IsValid() {
		return fmt.Errorf("%w: interval %g", network.ErrInvalidConfiguration,
			float64(c.Interval))
	}

	if c.PacketInterval() <= 0 {
		return fmt.Errorf("%w: sender needs a positive interval or a data rate "+
			"with a non-empty payload", network.ErrInvalidConfiguration)
	}

	if c.Dst < 0 {
		return fmt.Errorf("%w: sender destination %d",
			network.ErrInvalidConfiguration, c.Dst)
	}

	return validateWindow(c.StartTime, c.StopTime)
}

type sendEvent struct{}

type onEvent struct{}

type offEvent struct{}

// SenderStats counts the packets of a Sender.
type SenderStats struct {
	Sent   uint64 `json:"sent"`
	Bytes  uint64 `json:"bytes"`
	Failed uint64 `json:"failed"`
	Echoes uint64 `json:"echoes"`
}

// Sender emits fixed-size packets towards one destination, either at a fixed
// interval or during the on periods of an on/off pattern.
type Sender struct {
	env Builder

	name     string
	node     *network.Node
	cfg      SenderConfig
	interval timing.VTimeInSec

	state    State
	on       bool
	nextSend timing.EventHandle
	toggle   timing.EventHandle
	lastSend timing.VTimeInSec
	hasSent  bool

	Stats SenderStats
	rtts  []float64
}

var (
	_ Application      = (*Sender)(nil)
	_ network.Receiver = (*Sender)(nil)
)

// BuildSender creates a sender on node and binds its source port.
func (b Builder) BuildSender(
	name string,
	node *network.Node,
	cfg SenderConfig,
) (*Sender, error) {
	b = b.withDefaults()
	if err := b.mustBeReady(name, node); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sender %s: %w", name, err)
	}

	s := &Sender{
		env:      b,
		name:     name,
		node:     node,
		cfg:      cfg,
		interval: cfg.PacketInterval(),
	}
	s.env.logger = b.logger.With(logging.String("app", name))

	if err := node.Bind(cfg.SrcPort, s); err != nil {
		return nil, fmt.Errorf("sender %s: %w", name, err)
	}

	return s, nil
}

// Name returns the application name.
func (s *Sender) Name() string { return s.name }

// Node returns the node the sender runs on.
func (s *Sender) Node() *network.Node { return s.node }

// State returns the current state.
func (s *Sender) State() State { return s.state }

// StartTime returns when the first packet leaves.
func (s *Sender) StartTime() timing.VTimeInSec { return s.cfg.StartTime }

// StopTime returns when the sender stops.
func (s *Sender) StopTime() timing.VTimeInSec { return s.cfg.StopTime }

// Config returns the configuration.
func (s *Sender) Config() SenderConfig { return s.cfg }

// Handle processes the events of the sender.
func (s *Sender) Handle(event any) error {
	switch event.(type) {
	case *startEvent:
		return s.start()
	case *stopEvent:
		s.stop()
		return nil
	case *sendEvent:
		return s.send()
	case *onEvent:
		return s.turnOn()
	case *offEvent:
		return s.turnOff()
	default:
		return fmt.Errorf("sender %s: unknown event type: %T", s.name, event)
	}
}

func (s *Sender) start() error {
	if s.state != StateIdle {
		return nil
	}

	s.state = StateSending

	return s.turnOn()
}

func (s *Sender) stop() {
	s.state = StateStopped
	s.on = false
	s.env.engine.Cancel(s.nextSend)
	s.env.engine.Cancel(s.toggle)
}

func (s *Sender) turnOn() error {
	if s.state != StateSending {
		return nil
	}

	now := s.env.engine.CurrentTime()
	s.on = true

	if s.cfg.OnTime != nil {
		h, err := s.scheduleSelf(&offEvent{}, now+s.cfg.OnTime.Sample())
		if err != nil {
			return err
		}
		s.toggle = h
	}

	next := now
	if s.hasSent && s.lastSend+s.interval > now {
		next = s.lastSend + s.interval
	}

	h, err := s.scheduleSelf(&sendEvent{}, next)
	if err != nil {
		return err
	}
	s.nextSend = h

	return nil
}

func (s *Sender) turnOff() error {
	if s.state != StateSending {
		return nil
	}

	s.on = false
	s.env.engine.Cancel(s.nextSend)

	var off timing.VTimeInSec
	if s.cfg.OffTime != nil {
		off = s.cfg.OffTime.Sample()
	}

	h, err := s.scheduleSelf(&onEvent{}, s.env.engine.CurrentTime()+off)
	if err != nil {
		return err
	}
	s.toggle = h

	return nil
}

func (s *Sender) done() bool {
	return s.cfg.MaxPackets > 0 && s.Stats.Sent >= s.cfg.MaxPackets
}

func (s *Sender) send() error {
	if s.state != StateSending || !s.on || s.done() {
		return nil
	}

	now := s.env.engine.CurrentTime()
	f := &network.Frame{
		ID:          s.env.ids.Generate(),
		Src:         s.node.ID(),
		Dst:         s.cfg.Dst,
		SrcPort:     s.cfg.SrcPort,
		DstPort:     s.cfg.DstPort,
		PayloadSize: s.cfg.PayloadSize,
		Seq:         s.Stats.Sent,
		SendTime:    now,
	}

	s.Stats.Sent++
	s.Stats.Bytes += uint64(f.PayloadSize)
	s.lastSend = now
	s.hasSent = true
	s.env.record(trace.KindAppSend, s.node, f)

	_, err := s.node.Send(f)
	switch {
	case errors.Is(err, network.ErrCollision):
		s.Stats.Failed++
		s.env.logger.Warn(context.Background(), "packet lost",
			logging.Uint("seq", f.Seq), logging.Err(err))
	case err != nil:
		return err
	}

	if s.done() {
		return nil
	}

	h, err := s.scheduleSelf(&sendEvent{}, now+s.interval)
	if err != nil {
		return err
	}
	s.nextSend = h

	return nil
}

func (s *Sender) scheduleSelf(evt any, t timing.VTimeInSec) (timing.EventHandle, error) {
	return s.env.engine.Schedule(timing.ScheduledEvent{
		Event:   evt,
		Time:    t,
		Handler: s,
	})
}

// Receive counts echo replies arriving on the source port.
func (s *Sender) Receive(f *network.Frame, _ *network.Node) error {
	if !f.IsEcho {
		return nil
	}

	s.Stats.Echoes++
	s.rtts = append(s.rtts, float64(s.env.engine.CurrentTime()-f.SendTime))
	s.env.record(trace.KindAppReceive, s.node, f)

	return nil
}

// RoundTrip returns the mean and standard deviation of the echo round-trip
// times in seconds.
func (s *Sender) RoundTrip() (mean, std float64) {
	return meanStdDev(s.rtts)
}

func meanStdDev(samples []float64) (mean, std float64) {
	switch len(samples) {
	case 0:
		return 0, 0
	case 1:
		return samples[0], 0
	default:
		return stat.MeanStdDev(samples, nil)
	}
}
