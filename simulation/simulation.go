// Package simulation ties an engine, nodes, links, applications and their
// collaborators into one independent simulation.
package simulation

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/rand"

	"github.com/sarchlab/netsim/addressing"
	"github.com/sarchlab/netsim/app"
	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/idgen"
	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/metrics"
	"github.com/sarchlab/netsim/monitoring"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/observability"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
	"github.com/sarchlab/netsim/visual"
)

// An Option customizes a Simulation.
type Option func(*Simulation)

// WithName names the simulation.
func WithName(name string) Option {
	return func(s *Simulation) { s.name = name }
}

// WithSeed sets the seed from which every random stream of the simulation is
// derived.
func WithSeed(seed uint64) Option {
	return func(s *Simulation) { s.seed = seed }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithTraceSink records link and application events on sink.
func WithTraceSink(sink trace.Sink) Option {
	return func(s *Simulation) { s.traceSink = sink }
}

// LinkConfig holds the parameters shared by all link kinds.
type LinkConfig struct {
	DataRate network.DataRate
	Delay    timing.VTimeInSec

	// QueueCapacity bounds each direction of a point-to-point link. Zero
	// means unbounded.
	QueueCapacity int

	// CollisionDetection applies to shared links only.
	CollisionDetection bool
}

// Simulation owns one engine and everything scheduled on it. Simulations do
// not share state, so several may run in one process at the same time.
type Simulation struct {
	name   string
	seed   uint64
	engine *timing.SerialEngine
	ids    idgen.Generator
	rng    *rand.Rand
	logger logging.Logger

	nodes     []*network.Node
	nodeByID  map[network.NodeID]*network.Node
	links     []network.Link
	linkByID  map[network.LinkID]network.Link
	apps      []app.Application
	traceSink trace.Sink
	addresses *addressing.Allocator
	layout    *visual.Layout

	monitor     *monitoring.Monitor
	monitorAddr string
	progress    *monitoring.ProgressBar
	observer    *metrics.Observer

	routesDirty bool
	events      uint64
	closed      bool
}

// New creates an empty simulation.
func New(opts ...Option) *Simulation {
	s := &Simulation{
		name:      "netsim",
		seed:      1,
		engine:    timing.NewSerialEngine(),
		ids:       idgen.New(),
		logger:    logging.Noop(),
		nodeByID:  make(map[network.NodeID]*network.Node),
		linkByID:  make(map[network.LinkID]network.Link),
		addresses: addressing.NewAllocator(),
		layout:    visual.NewLayout(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.rng = rand.New(rand.NewSource(s.seed))
	s.logger = s.logger.With(logging.String("sim", s.name))
	s.engine.AcceptHook(hooking.At(func(hooking.HookCtx) {
		s.events++

		if s.progress != nil {
			s.progress.SetFinished(progressUnits(s.engine.CurrentTime()))
			s.progress.SetInProgress(uint64(s.engine.Pending()))
		}
	}, timing.HookPosBeforeEvent))

	return s
}

// Name returns the simulation name.
func (s *Simulation) Name() string { return s.name }

// Seed returns the root seed.
func (s *Simulation) Seed() uint64 { return s.seed }

// Engine returns the event engine.
func (s *Simulation) Engine() *timing.SerialEngine { return s.engine }

// Nodes returns the nodes in creation order.
func (s *Simulation) Nodes() []*network.Node { return s.nodes }

// Links returns the links in creation order.
func (s *Simulation) Links() []network.Link { return s.links }

// Applications returns the applications in installation order.
func (s *Simulation) Applications() []app.Application { return s.apps }

// Addresses returns the address allocator.
func (s *Simulation) Addresses() *addressing.Allocator { return s.addresses }

// Layout returns the node positions.
func (s *Simulation) Layout() *visual.Layout { return s.layout }

// TraceSink returns the trace sink, which may be nil.
func (s *Simulation) TraceSink() trace.Sink { return s.traceSink }

// Logger returns the simulation logger.
func (s *Simulation) Logger() logging.Logger { return s.logger }

// Monitor returns the monitoring server, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor { return s.monitor }

// MonitorAddr returns the URL of the monitoring server, if any.
func (s *Simulation) MonitorAddr() string { return s.monitorAddr }

// EventsHandled returns the number of events the engine dispatched.
func (s *Simulation) EventsHandled() uint64 { return s.events }

// Node returns the node with the given ID.
func (s *Simulation) Node(id network.NodeID) (*network.Node, bool) {
	n, ok := s.nodeByID[id]
	return n, ok
}

// Link returns the link with the given ID.
func (s *Simulation) Link(id network.LinkID) (network.Link, bool) {
	l, ok := s.linkByID[id]
	return l, ok
}

// NextSeed derives a new seed from the root seed. Calling it in the same
// order gives the same seeds.
func (s *Simulation) NextSeed() uint64 {
	return s.rng.Uint64()
}

// AddNode creates a node. Node IDs are assigned from zero in creation order.
func (s *Simulation) AddNode(name string) *network.Node {
	id := network.NodeID(len(s.nodes))
	if name == "" {
		name = fmt.Sprintf("n%d", id)
	}

	n := network.NewNode(id, name)
	s.nodes = append(s.nodes, n)
	s.nodeByID[id] = n
	s.routesDirty = true

	if s.monitor != nil {
		s.monitor.RegisterNode(n)
	}

	return n
}

func (s *Simulation) lookupNodes(ids []network.NodeID) ([]*network.Node, error) {
	nodes := make([]*network.Node, 0, len(ids))

	for _, id := range ids {
		n, ok := s.nodeByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown node %d",
				network.ErrInvalidConfiguration, id)
		}

		nodes = append(nodes, n)
	}

	return nodes, nil
}

func (s *Simulation) nextLinkID() network.LinkID {
	return network.LinkID(len(s.links))
}

func (s *Simulation) addLink(l network.Link) {
	s.links = append(s.links, l)
	s.linkByID[l.ID()] = l
	s.routesDirty = true

	if s.traceSink != nil {
		trace.CollectLinkTrace(l, s.traceSink)
	}

	if s.monitor != nil {
		s.monitor.RegisterLink(l)
	}
}

func (s *Simulation) addApp(a app.Application) {
	s.apps = append(s.apps, a)

	if s.monitor != nil {
		s.monitor.RegisterApplication(a)
	}
}

// ConnectPointToPoint links nodes a and b.
func (s *Simulation) ConnectPointToPoint(
	cfg LinkConfig,
	a, b network.NodeID,
) (*network.PointToPointLink, error) {
	nodes, err := s.lookupNodes([]network.NodeID{a, b})
	if err != nil {
		return nil, err
	}

	id := s.nextLinkID()
	l, err := network.MakePointToPointBuilder().
		WithEngine(s.engine).
		WithDataRate(cfg.DataRate).
		WithPropagationDelay(cfg.Delay).
		WithQueueCapacity(cfg.QueueCapacity).
		WithID(id).
		Build(fmt.Sprintf("p2p%d", id), nodes[0], nodes[1])
	if err != nil {
		return nil, err
	}

	s.addLink(l)

	return l, nil
}

// ConnectShared attaches the given nodes to a new shared medium.
func (s *Simulation) ConnectShared(
	cfg LinkConfig,
	ids ...network.NodeID,
) (*network.SharedMediumLink, error) {
	nodes, err := s.lookupNodes(ids)
	if err != nil {
		return nil, err
	}

	id := s.nextLinkID()
	l, err := network.MakeSharedMediumBuilder().
		WithEngine(s.engine).
		WithDataRate(cfg.DataRate).
		WithPropagationDelay(cfg.Delay).
		WithCollisionDetection(cfg.CollisionDetection).
		WithID(id).
		Build(fmt.Sprintf("shared%d", id), nodes...)
	if err != nil {
		return nil, err
	}

	s.addLink(l)

	return l, nil
}

func (s *Simulation) appBuilder() app.Builder {
	b := app.MakeBuilder().
		WithEngine(s.engine).
		WithIDGenerator(s.ids).
		WithLogger(s.logger)

	if s.traceSink != nil {
		b = b.WithTraceSink(s.traceSink)
	}

	return b
}

// InstallSender creates a sender on node and schedules its start and stop.
func (s *Simulation) InstallSender(
	node network.NodeID,
	name string,
	cfg app.SenderConfig,
) (*app.Sender, error) {
	n, ok := s.nodeByID[node]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %d", network.ErrInvalidConfiguration, node)
	}

	if _, ok := s.nodeByID[cfg.Dst]; !ok {
		return nil, fmt.Errorf("%w: sender %s targets unknown node %d",
			network.ErrInvalidConfiguration, name, cfg.Dst)
	}

	sender, err := s.appBuilder().BuildSender(name, n, cfg)
	if err != nil {
		return nil, err
	}

	if err := app.Install(s.engine, sender); err != nil {
		return nil, err
	}

	s.addApp(sender)

	return sender, nil
}

// InstallSink creates a sink on node and schedules its start and stop.
func (s *Simulation) InstallSink(
	node network.NodeID,
	name string,
	cfg app.SinkConfig,
) (*app.Sink, error) {
	n, ok := s.nodeByID[node]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %d", network.ErrInvalidConfiguration, node)
	}

	sink, err := s.appBuilder().BuildSink(name, n, cfg)
	if err != nil {
		return nil, err
	}

	if err := app.Install(s.engine, sink); err != nil {
		return nil, err
	}

	s.addApp(sink)

	return sink, nil
}

// AssignSubnet gives the endpoints of a link addresses in base/mask.
func (s *Simulation) AssignSubnet(link network.LinkID, base, mask string) error {
	l, ok := s.linkByID[link]
	if !ok {
		return fmt.Errorf("%w: unknown link %d", network.ErrInvalidConfiguration, link)
	}

	_, err := s.addresses.AssignSubnet(l, base, mask)

	return err
}

// SetPosition places a node for drawing.
func (s *Simulation) SetPosition(node network.NodeID, x, y float64) error {
	if _, ok := s.nodeByID[node]; !ok {
		return fmt.Errorf("%w: unknown node %d", network.ErrInvalidConfiguration, node)
	}

	return s.layout.SetPosition(node, x, y)
}

// ComputeRoutes installs static routes between every pair of connected
// nodes. Run calls it when the topology changed.
func (s *Simulation) ComputeRoutes() error {
	if err := network.ComputeRoutes(s.nodes); err != nil {
		return err
	}

	s.routesDirty = false

	return nil
}

// Run processes events until the queue is empty or, when horizon is
// positive, until the next event is at or after horizon.
func (s *Simulation) Run(horizon timing.VTimeInSec) error {
	return s.RunContext(context.Background(), horizon)
}

// RunContext is Run with a context that carries the logger and the tracing
// span of the caller.
func (s *Simulation) RunContext(ctx context.Context, horizon timing.VTimeInSec) (err error) {
	if s.closed {
		return fmt.Errorf("simulation %s is closed", s.name)
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanSimulationRun,
		attribute.String("sim", s.name),
		attribute.Float64("horizon", float64(horizon)))
	defer func() { observability.EndSpan(span, err) }()

	if !horizon.IsValid() {
		return fmt.Errorf("%w: horizon %g",
			timing.ErrInvalidSchedule, float64(horizon))
	}

	if s.routesDirty {
		if err := s.ComputeRoutes(); err != nil {
			return err
		}
	}

	s.logger.Info(ctx, "run started",
		logging.Int("nodes", len(s.nodes)),
		logging.Int("links", len(s.links)),
		logging.Int("apps", len(s.apps)),
		logging.Float("horizon", float64(horizon)))

	if s.observer != nil {
		s.observer.SetTopology(len(s.nodes), len(s.links), len(s.apps))
	}

	if s.monitor != nil && horizon > 0 {
		s.progress = s.monitor.CreateProgressBar(s.name, progressUnits(horizon))
	}

	wallStart := time.Now()

	if horizon > 0 {
		err = s.engine.RunUntil(horizon)
	} else {
		err = s.engine.Run()
	}

	s.engine.Finished()
	s.finishProgress()

	if s.observer != nil {
		s.observer.ObserveRun(time.Since(wallStart))
	}

	if err != nil {
		s.logger.Error(ctx, "run aborted",
			logging.Float("time", float64(s.engine.CurrentTime())),
			logging.Err(err))

		return err
	}

	span.SetAttributes(
		attribute.Int64("events", int64(s.events)),
		attribute.Float64("end_time", float64(s.engine.CurrentTime())))

	s.logger.Info(ctx, "run finished",
		logging.Float("time", float64(s.engine.CurrentTime())),
		logging.Uint("events", s.events),
		logging.Int("pending", s.engine.Pending()))

	return trace.Flush(s.traceSink)
}

// progressUnits converts simulation time to the milliseconds shown by the
// progress bar.
func progressUnits(t timing.VTimeInSec) uint64 {
	return uint64(float64(t) * 1000)
}

func (s *Simulation) finishProgress() {
	if s.progress == nil {
		return
	}

	s.monitor.CompleteProgressBar(s.progress)
	s.progress = nil
}

// Close flushes and closes the trace sink. The simulation cannot run after
// it is closed.
func (s *Simulation) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			s.logger.Warn(ctx, "monitor shutdown failed", logging.Err(err))
		}
	}

	if s.traceSink == nil {
		return nil
	}

	if c, ok := s.traceSink.(io.Closer); ok {
		return c.Close()
	}

	return trace.Flush(s.traceSink)
}
