package simulation

import (
	"github.com/sarchlab/netsim/app"
	"github.com/sarchlab/netsim/network"
)

// SenderReport summarizes one sender.
type SenderReport struct {
	Name    string          `json:"name"`
	Node    network.NodeID  `json:"node"`
	State   string          `json:"state"`
	Stats   app.SenderStats `json:"stats"`
	RTTMean float64         `json:"rtt_mean,omitempty"`
	RTTStd  float64         `json:"rtt_std,omitempty"`
}

// SinkReport summarizes one sink.
type SinkReport struct {
	Name         string         `json:"name"`
	Node         network.NodeID `json:"node"`
	State        string         `json:"state"`
	Stats        app.SinkStats  `json:"stats"`
	FirstArrival *float64       `json:"first_arrival,omitempty"`
	DelayMean    float64        `json:"delay_mean"`
	DelayStd     float64        `json:"delay_std"`
}

// NodeReport summarizes one node.
type NodeReport struct {
	ID    network.NodeID    `json:"id"`
	Name  string            `json:"name"`
	Addr  string            `json:"addr,omitempty"`
	Stats network.NodeStats `json:"stats"`
}

// LinkReport summarizes one link.
type LinkReport struct {
	ID         network.LinkID `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	DataRate   string         `json:"data_rate"`
	Delay      float64        `json:"delay"`
	Drops      uint64         `json:"drops"`
	Collisions uint64         `json:"collisions,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	Name    string         `json:"name"`
	Seed    uint64         `json:"seed"`
	EndTime float64        `json:"end_time"`
	Events  uint64         `json:"events"`
	Pending int            `json:"pending"`
	Nodes   []NodeReport   `json:"nodes"`
	Links   []LinkReport   `json:"links"`
	Senders []SenderReport `json:"senders,omitempty"`
	Sinks   []SinkReport   `json:"sinks,omitempty"`
}

// Report summarizes the simulation in its current state.
func (s *Simulation) Report() Report {
	r := Report{
		Name:    s.name,
		Seed:    s.seed,
		EndTime: float64(s.engine.CurrentTime()),
		Events:  s.events,
		Pending: s.engine.Pending(),
	}

	for _, n := range s.nodes {
		nr := NodeReport{ID: n.ID(), Name: n.Name(), Stats: n.Stats}
		if addr, ok := s.addresses.Resolve(n.ID()); ok {
			nr.Addr = addr.String()
		}

		r.Nodes = append(r.Nodes, nr)
	}

	for _, l := range s.links {
		lr := LinkReport{
			ID:       l.ID(),
			Name:     l.Name(),
			DataRate: l.DataRate().String(),
			Delay:    float64(l.PropagationDelay()),
		}

		switch l := l.(type) {
		case *network.PointToPointLink:
			lr.Kind = "p2p"
			lr.Drops = l.Drops()
		case *network.SharedMediumLink:
			lr.Kind = "shared"
			lr.Drops = l.Drops
			lr.Collisions = l.Collisions
		}

		r.Links = append(r.Links, lr)
	}

	for _, a := range s.apps {
		switch a := a.(type) {
		case *app.Sender:
			mean, std := a.RoundTrip()
			r.Senders = append(r.Senders, SenderReport{
				Name: a.Name(), Node: a.Node().ID(), State: a.State().String(),
				Stats: a.Stats, RTTMean: mean, RTTStd: std,
			})
		case *app.Sink:
			mean, std := a.Delay()
			sr := SinkReport{
				Name: a.Name(), Node: a.Node().ID(), State: a.State().String(),
				Stats: a.Stats, DelayMean: mean, DelayStd: std,
			}
			if t, ok := a.FirstArrival(); ok {
				first := float64(t)
				sr.FirstArrival = &first
			}

			r.Sinks = append(r.Sinks, sr)
		}
	}

	return r
}
