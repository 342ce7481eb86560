package topology

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/observability"
	"github.com/sarchlab/netsim/simulation"
)

// Build validates spec and creates the simulation it describes. Nothing is
// scheduled unless the whole description is valid. Options given by the
// caller override the name and seed of the description.
func Build(spec Spec, opts ...simulation.Option) (*simulation.Simulation, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	base := []simulation.Option{simulation.WithName(spec.Name)}
	if spec.Seed != 0 {
		base = append(base, simulation.WithSeed(spec.Seed))
	}

	sim := simulation.New(append(base, opts...)...)
	if err := Populate(context.Background(), sim, spec); err != nil {
		return nil, err
	}

	return sim, nil
}

// Populate adds the nodes, links, routes, positions and applications of spec
// to an empty simulation.
func Populate(ctx context.Context, sim *simulation.Simulation, spec Spec) (err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTopologyBuild,
		attribute.String("scenario", spec.Name),
		attribute.Int("nodes", spec.Nodes))
	defer func() { observability.EndSpan(span, err) }()

	if err := spec.Validate(); err != nil {
		return err
	}

	if len(sim.Nodes()) != 0 {
		return fmt.Errorf("%w: simulation %s already has nodes",
			network.ErrInvalidConfiguration, sim.Name())
	}

	for i := 0; i < spec.Nodes; i++ {
		sim.AddNode("")
	}

	for _, l := range spec.Links {
		if err := buildLink(sim, l); err != nil {
			return err
		}
	}

	if err := sim.ComputeRoutes(); err != nil {
		return err
	}

	for _, p := range spec.Positions {
		if err := sim.SetPosition(p.Node, p.X, p.Y); err != nil {
			return err
		}
	}

	for _, a := range spec.Applications {
		if err := buildApp(sim, a); err != nil {
			return err
		}
	}

	sim.Logger().Debug(ctx, "topology built",
		logging.Int("nodes", spec.Nodes),
		logging.Int("links", len(spec.Links)),
		logging.Int("apps", len(spec.Applications)))

	return nil
}

func buildLink(sim *simulation.Simulation, l LinkSpec) error {
	cfg := simulation.LinkConfig{
		DataRate:           l.DataRate,
		Delay:              l.Delay.Seconds(),
		QueueCapacity:      l.QueueCapacity,
		CollisionDetection: l.CollisionDetection,
	}

	var (
		link network.Link
		err  error
	)

	switch l.Kind {
	case PointToPoint:
		link, err = sim.ConnectPointToPoint(cfg, l.Nodes[0], l.Nodes[1])
	case Shared:
		link, err = sim.ConnectShared(cfg, l.Nodes...)
	}

	if err != nil {
		return err
	}

	if l.Subnet != nil {
		return sim.AssignSubnet(link.ID(), l.Subnet.Base, l.Subnet.Mask)
	}

	return nil
}

func buildApp(sim *simulation.Simulation, a AppSpec) error {
	if a.Kind == SinkApp {
		_, err := sim.InstallSink(a.Node, a.Name, a.sinkConfig())
		return err
	}

	cfg := a.senderConfig()

	var err error
	if cfg.OnTime, err = a.OnTime.build(sim.NextSeed); err != nil {
		return err
	}

	if cfg.OffTime, err = a.OffTime.build(sim.NextSeed); err != nil {
		return err
	}

	_, err = sim.InstallSender(a.Node, a.Name, cfg)

	return err
}
