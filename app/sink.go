package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	Port network.Port

	// Echo makes the sink answer every counted frame with a frame of the
	// same size sent back to the source port.
	Echo bool

	StartTime timing.VTimeInSec
	StopTime  timing.VTimeInSec
}

// Validate checks the configuration.
func (c SinkConfig) Validate() error {
	return validateWindow(c.StartTime, c.StopTime)
}

// SinkStats counts what a Sink received.
type SinkStats struct {
	Packets       uint64 `json:"packets"`
	Bytes         uint64 `json:"bytes"`
	EarlyArrivals uint64 `json:"early_arrivals"`
	LateArrivals  uint64 `json:"late_arrivals"`
	EchoesSent    uint64 `json:"echoes_sent"`
	EchoFailures  uint64 `json:"echo_failures"`
}

// Sink counts the frames delivered to its port while it listens. A frame
// delivered at t is counted when start <= t < stop. Frames before start and
// at or after stop are only counted as early or late arrivals.
type Sink struct {
	env Builder

	name  string
	node  *network.Node
	cfg   SinkConfig
	state State

	Stats  SinkStats
	delays []float64
	first  timing.VTimeInSec
	last   timing.VTimeInSec
}

var (
	_ Application      = (*Sink)(nil)
	_ network.Receiver = (*Sink)(nil)
)

// BuildSink creates a sink on node and binds its port.
func (b Builder) BuildSink(
	name string,
	node *network.Node,
	cfg SinkConfig,
) (*Sink, error) {
	b = b.withDefaults()
	if err := b.mustBeReady(name, node); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sink %s: %w", name, err)
	}

	s := &Sink{
		env:  b,
		name: name,
		node: node,
		cfg:  cfg,
	}
	s.env.logger = b.logger.With(logging.String("app", name))

	if err := node.Bind(cfg.Port, s); err != nil {
		return nil, fmt.Errorf("sink %s: %w", name, err)
	}

	return s, nil
}

// Name returns the application name.
func (s *Sink) Name() string { return s.name }

// Node returns the node the sink runs on.
func (s *Sink) Node() *network.Node { return s.node }

// State returns the current state.
func (s *Sink) State() State { return s.state }

// StartTime returns when the sink starts listening.
func (s *Sink) StartTime() timing.VTimeInSec { return s.cfg.StartTime }

// StopTime returns when the sink stops listening.
func (s *Sink) StopTime() timing.VTimeInSec { return s.cfg.StopTime }

// Config returns the configuration.
func (s *Sink) Config() SinkConfig { return s.cfg }

// Handle processes the start and stop events of the sink.
func (s *Sink) Handle(event any) error {
	switch event.(type) {
	case *startEvent:
		if s.state == StateIdle {
			s.state = StateListening
		}
	case *stopEvent:
		s.state = StateStopped
	default:
		return fmt.Errorf("sink %s: unknown event type: %T", s.name, event)
	}

	return nil
}

// Receive counts a frame delivered to the sink port.
func (s *Sink) Receive(f *network.Frame, _ *network.Node) error {
	now := s.env.engine.CurrentTime()

	switch {
	case now < s.cfg.StartTime:
		s.Stats.EarlyArrivals++
		return nil
	case s.cfg.StopTime != 0 && now >= s.cfg.StopTime:
		s.Stats.LateArrivals++
		return nil
	}

	if s.Stats.Packets == 0 {
		s.first = now
	}
	s.last = now

	s.Stats.Packets++
	s.Stats.Bytes += uint64(f.PayloadSize)
	s.delays = append(s.delays, float64(now-f.SendTime))
	s.env.record(trace.KindAppReceive, s.node, f)

	if s.cfg.Echo && !f.IsEcho {
		return s.echo(f)
	}

	return nil
}

func (s *Sink) echo(f *network.Frame) error {
	reply := &network.Frame{
		ID:          s.env.ids.Generate(),
		Src:         s.node.ID(),
		Dst:         f.Src,
		SrcPort:     s.cfg.Port,
		DstPort:     f.SrcPort,
		PayloadSize: f.PayloadSize,
		Seq:         f.Seq,
		SendTime:    f.SendTime,
		IsEcho:      true,
	}

	s.Stats.EchoesSent++
	s.env.record(trace.KindAppSend, s.node, reply)

	_, err := s.node.Send(reply)
	if errors.Is(err, network.ErrCollision) {
		s.Stats.EchoFailures++
		s.env.logger.Warn(context.Background(), "echo lost",
			logging.Uint("seq", f.Seq), logging.Err(err))

		return nil
	}

	return err
}

// Delay returns the mean and standard deviation of the one-way delay of the
// counted frames in seconds.
func (s *Sink) Delay() (mean, std float64) {
	return meanStdDev(s.delays)
}

// Delays returns the one-way delay of every counted frame in arrival order.
func (s *Sink) Delays() []float64 {
	return s.delays
}

// FirstArrival returns the time the first counted frame arrived.
func (s *Sink) FirstArrival() (timing.VTimeInSec, bool) {
	return s.first, s.Stats.Packets > 0
}

// LastArrival returns the time the last counted frame arrived.
func (s *Sink) LastArrival() (timing.VTimeInSec, bool) {
	return s.last, s.Stats.Packets > 0
}
