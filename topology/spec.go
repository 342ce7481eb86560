// Package topology describes simulations declaratively, loads those
// descriptions from YAML or JSON files and builds runnable simulations from
// them.
package topology

import (
	"fmt"

	"github.com/sarchlab/netsim/addressing"
	"github.com/sarchlab/netsim/app"
	"github.com/sarchlab/netsim/network"
)

// LinkKind selects the link model.
type LinkKind string

// Link kinds.
const (
	PointToPoint LinkKind = "p2p"
	Shared       LinkKind = "shared"
)

// AppKind selects the application model.
type AppKind string

// Application kinds.
const (
	SenderApp AppKind = "sender"
	SinkApp   AppKind = "sink"
)

// DistKind selects an on/off period distribution.
type DistKind string

// Distribution kinds.
const (
	ConstantDist    DistKind = "constant"
	ExponentialDist DistKind = "exponential"
)

// Spec describes a whole simulation.
type Spec struct {
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Seed         uint64         `yaml:"seed,omitempty" json:"seed,omitempty"`
	Nodes        int            `yaml:"nodes" json:"nodes"`
	Links        []LinkSpec     `yaml:"links" json:"links"`
	Applications []AppSpec      `yaml:"applications" json:"applications"`
	Positions    []PositionSpec `yaml:"positions,omitempty" json:"positions,omitempty"`

	// Horizon stops the run. Zero runs until no event is left.
	Horizon Duration `yaml:"horizon,omitempty" json:"horizon,omitempty"`
}

// LinkSpec describes one link.
type LinkSpec struct {
	Kind               LinkKind         `yaml:"kind" json:"kind"`
	Nodes              []network.NodeID `yaml:"nodes" json:"nodes"`
	DataRate           network.DataRate `yaml:"data_rate_bps" json:"data_rate_bps"`
	Delay              Duration         `yaml:"delay" json:"delay"`
	QueueCapacity      int              `yaml:"queue_capacity,omitempty" json:"queue_capacity,omitempty"`
	CollisionDetection bool             `yaml:"collision_detection,omitempty" json:"collision_detection,omitempty"`
	Subnet             *SubnetSpec      `yaml:"subnet,omitempty" json:"subnet,omitempty"`
}

// SubnetSpec gives a link an IPv4 subnet.
type SubnetSpec struct {
	Base string `yaml:"base" json:"base"`
	Mask string `yaml:"mask" json:"mask"`
}

// DistSpec describes an on or off period distribution. Value is the constant
// or the mean.
type DistSpec struct {
	Kind  DistKind `yaml:"kind" json:"kind"`
	Value Duration `yaml:"value" json:"value"`
}

// AppSpec describes one application.
type AppSpec struct {
	Kind AppKind        `yaml:"kind" json:"kind"`
	Name string         `yaml:"name" json:"name"`
	Node network.NodeID `yaml:"node" json:"node"`

	Start Duration `yaml:"start" json:"start"`
	Stop  Duration `yaml:"stop,omitempty" json:"stop,omitempty"`

	// Sink fields.
	Port network.Port `yaml:"port,omitempty" json:"port,omitempty"`
	Echo bool         `yaml:"echo,omitempty" json:"echo,omitempty"`

	// Sender fields.
	Dst         network.NodeID   `yaml:"dst,omitempty" json:"dst,omitempty"`
	DstPort     network.Port     `yaml:"dst_port,omitempty" json:"dst_port,omitempty"`
	SrcPort     network.Port     `yaml:"src_port,omitempty" json:"src_port,omitempty"`
	PayloadSize int              `yaml:"payload_size,omitempty" json:"payload_size,omitempty"`
	Interval    Duration         `yaml:"interval,omitempty" json:"interval,omitempty"`
	DataRate    network.DataRate `yaml:"data_rate_bps,omitempty" json:"data_rate_bps,omitempty"`
	MaxPackets  uint64           `yaml:"max_packets,omitempty" json:"max_packets,omitempty"`
	OnTime      *DistSpec        `yaml:"on_time,omitempty" json:"on_time,omitempty"`
	OffTime     *DistSpec        `yaml:"off_time,omitempty" json:"off_time,omitempty"`
}

// PositionSpec places a node for drawing.
type PositionSpec struct {
	Node network.NodeID `yaml:"node" json:"node"`
	X    float64        `yaml:"x" json:"x"`
	Y    float64        `yaml:"y" json:"y"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format,
		append([]any{network.ErrInvalidConfiguration}, args...)...)
}

// Validate checks the whole description without building anything.
func (s Spec) Validate() error {
	if s.Nodes <= 0 {
		return invalid("scenario %q needs at least one node", s.Name)
	}

	if !s.Horizon.Seconds().IsValid() {
		return invalid("horizon %g", float64(s.Horizon))
	}

	for i, l := range s.Links {
		if err := s.validateLink(l); err != nil {
			return fmt.Errorf("link %d: %w", i, err)
		}
	}

	names := make(map[string]bool)
	for i, a := range s.Applications {
		if err := s.validateApp(a); err != nil {
			return fmt.Errorf("application %d (%s): %w", i, a.Name, err)
		}

		if names[a.Name] {
			return invalid("duplicated application name %q", a.Name)
		}
		names[a.Name] = true
	}

	for _, p := range s.Positions {
		if !s.hasNode(p.Node) {
			return invalid("position for unknown node %d", p.Node)
		}
	}

	return nil
}

func (s Spec) hasNode(id network.NodeID) bool {
	return id >= 0 && int(id) < s.Nodes
}

func (s Spec) validateLink(l LinkSpec) error {
	switch l.Kind {
	case PointToPoint:
		if len(l.Nodes) != 2 {
			return invalid("point-to-point link needs 2 nodes, got %d", len(l.Nodes))
		}
	case Shared:
		if len(l.Nodes) < 2 {
			return invalid("shared link needs at least 2 nodes, got %d", len(l.Nodes))
		}

		if l.QueueCapacity != 0 {
			return invalid("shared links have no queue capacity")
		}
	default:
		return invalid("unknown link kind %q", l.Kind)
	}

	seen := make(map[network.NodeID]bool)
	for _, id := range l.Nodes {
		if !s.hasNode(id) {
			return invalid("unknown node %d", id)
		}

		if seen[id] {
			return invalid("node %d attached twice", id)
		}
		seen[id] = true
	}

	if l.DataRate == 0 {
		return invalid("data rate must be positive")
	}

	if !l.Delay.Seconds().IsValid() {
		return invalid("delay %g", float64(l.Delay))
	}

	if l.QueueCapacity < 0 {
		return invalid("queue capacity %d", l.QueueCapacity)
	}

	if l.Subnet != nil {
		if _, err := addressing.ParseSubnet(l.Subnet.Base, l.Subnet.Mask); err != nil {
			return err
		}
	}

	return nil
}

func (s Spec) validateApp(a AppSpec) error {
	if a.Name == "" {
		return invalid("application needs a name")
	}

	if !s.hasNode(a.Node) {
		return invalid("unknown node %d", a.Node)
	}

	switch a.Kind {
	case SinkApp:
		return a.sinkConfig().Validate()
	case SenderApp:
		if !s.hasNode(a.Dst) || a.Dst == a.Node {
			return invalid("sender destination %d", a.Dst)
		}

		for _, d := range []*DistSpec{a.OnTime, a.OffTime} {
			if err := d.validate(); err != nil {
				return err
			}
		}

		return a.senderConfig().Validate()
	default:
		return invalid("unknown application kind %q", a.Kind)
	}
}

func (d *DistSpec) validate() error {
	if d == nil {
		return nil
	}

	if !d.Value.Seconds().IsValid() {
		return invalid("distribution value %g", float64(d.Value))
	}

	switch d.Kind {
	case ConstantDist:
		return nil
	case ExponentialDist:
		if d.Value == 0 {
			return invalid("exponential mean must be positive")
		}

		return nil
	default:
		return invalid("unknown distribution kind %q", d.Kind)
	}
}

func (d *DistSpec) build(seed func() uint64) (app.Distribution, error) {
	if d == nil {
		return nil, nil
	}

	if d.Kind == ExponentialDist {
		return app.NewExponential(d.Value.Seconds(), seed())
	}

	return app.Constant(d.Value), nil
}

func (a AppSpec) sinkConfig() app.SinkConfig {
	return app.SinkConfig{
		Port:      a.Port,
		Echo:      a.Echo,
		StartTime: a.Start.Seconds(),
		StopTime:  a.Stop.Seconds(),
	}
}

// senderConfig converts the spec without the on/off distributions.
func (a AppSpec) senderConfig() app.SenderConfig {
	return app.SenderConfig{
		Dst:         a.Dst,
		DstPort:     a.DstPort,
		SrcPort:     a.SrcPort,
		PayloadSize: a.PayloadSize,
		Interval:    a.Interval.Seconds(),
		DataRate:    a.DataRate,
		MaxPackets:  a.MaxPackets,
		StartTime:   a.Start.Seconds(),
		StopTime:    a.Stop.Seconds(),
	}
}
