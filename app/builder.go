package app

import (
	"fmt"

	"github.com/sarchlab/netsim/idgen"
	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
)

// Builder creates senders and sinks that share an engine, an ID generator, a
// trace sink and a logger.
type Builder struct {
	engine    timing.EventScheduler
	ids       idgen.Generator
	traceSink trace.Sink
	logger    logging.Logger
}

// MakeBuilder returns a Builder with a fresh ID generator and no tracing.
func MakeBuilder() Builder {
	return Builder{
		ids:    idgen.New(),
		logger: logging.Noop(),
	}
}

// WithEngine sets the engine that schedules application events.
func (b Builder) WithEngine(e timing.EventScheduler) Builder {
	b.engine = e
	return b
}

// WithIDGenerator sets the generator of frame IDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// WithTraceSink makes the applications record what they send and receive.
func (b Builder) WithTraceSink(s trace.Sink) Builder {
	b.traceSink = s
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logging.Logger) Builder {
	b.logger = l
	return b
}

func (b Builder) withDefaults() Builder {
	if b.ids == nil {
		b.ids = idgen.New()
	}

	if b.logger == nil {
		b.logger = logging.Noop()
	}

	return b
}

func (b Builder) mustBeReady(name string, node *network.Node) error {
	if b.engine == nil {
		return fmt.Errorf("%w: application %s needs an engine",
			network.ErrInvalidConfiguration, name)
	}

	if node == nil {
		return fmt.Errorf("%w: application %s needs a node",
			network.ErrInvalidConfiguration, name)
	}

	return nil
}

func (b Builder) record(kind trace.Kind, node *network.Node, f *network.Frame) {
	if b.traceSink == nil {
		return
	}

	b.traceSink.Record(trace.Record{
		Kind:    kind,
		Time:    b.engine.CurrentTime(),
		NodeID:  node.ID(),
		LinkID:  trace.NoLink,
		Bytes:   f.PayloadSize,
		FrameID: f.ID,
	})
}
