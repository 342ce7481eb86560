package topology

import (
	"fmt"
	"sort"

	"github.com/sarchlab/netsim/network"
)

var presets = map[string]func() Spec{
	"p2p-chain":      PointToPointChain,
	"shared-segment": SharedSegment,
}

// PresetNames returns the names of the built-in scenarios in order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Preset returns a built-in scenario by name.
func Preset(name string) (Spec, bool) {
	f, ok := presets[name]
	if !ok {
		return Spec{}, false
	}

	return f(), true
}

// PointToPointChain is a client and a server joined by four routers over five
// 1 Mbps, 2 ms point-to-point links. The client on node 0 sends 512 byte
// packets at 500 Kbps from 2 s to 9 s to a sink on node 5 listening from 1 s
// to 10 s.
func PointToPointChain() Spec {
	spec := Spec{
		Name:        "p2p-chain",
		Description: "client, four routers and a server on a point-to-point chain",
		Seed:        1,
		Nodes:       6,
		Horizon:     Duration(11),
	}

	for i := 0; i < 5; i++ {
		spec.Links = append(spec.Links, LinkSpec{
			Kind:     PointToPoint,
			Nodes:    []network.NodeID{network.NodeID(i), network.NodeID(i + 1)},
			DataRate: 1 * network.Mbps,
			Delay:    Duration(0.002),
			Subnet: &SubnetSpec{
				Base: fmt.Sprintf("10.1.%d.0", i+1),
				Mask: "255.255.255.0",
			},
		})
	}

	for i := 0; i < 6; i++ {
		spec.Positions = append(spec.Positions,
			PositionSpec{Node: network.NodeID(i), X: float64(10 * i), Y: 20})
	}

	spec.Applications = []AppSpec{
		{
			Kind:  SinkApp,
			Name:  "server",
			Node:  5,
			Port:  9,
			Start: 1,
			Stop:  10,
		},
		{
			Kind:        SenderApp,
			Name:        "client",
			Node:        0,
			Dst:         5,
			DstPort:     9,
			SrcPort:     49153,
			PayloadSize: 512,
			DataRate:    500 * network.Kbps,
			OnTime:      &DistSpec{Kind: ConstantDist, Value: 1},
			OffTime:     &DistSpec{Kind: ConstantDist, Value: 0},
			Start:       2,
			Stop:        9,
		},
	}

	return spec
}

// SharedSegment is four nodes on one 10 Mbps shared segment with a 6500 ns
// delay. An echo client on node 1 sends ten 1024 byte requests one second
// apart from 2 s to the echo server on node 0. Both stop at 12 s so every
// request is answered.
func SharedSegment() Spec {
	return Spec{
		Name:        "shared-segment",
		Description: "echo client and server on a shared segment of four nodes",
		Seed:        1,
		Nodes:       4,
		Horizon:     Duration(13),
		Links: []LinkSpec{
			{
				Kind:     Shared,
				Nodes:    []network.NodeID{0, 1, 2, 3},
				DataRate: 10 * network.Mbps,
				Delay:    Duration(6500e-9),
				Subnet:   &SubnetSpec{Base: "10.1.1.0", Mask: "255.255.255.0"},
			},
		},
		Positions: []PositionSpec{
			{Node: 0, X: 10, Y: 10},
			{Node: 1, X: 20, Y: 10},
			{Node: 2, X: 30, Y: 10},
			{Node: 3, X: 40, Y: 10},
		},
		Applications: []AppSpec{
			{
				Kind:  SinkApp,
				Name:  "echo-server",
				Node:  0,
				Port:  9,
				Echo:  true,
				Start: 1,
				Stop:  12,
			},
			{
				Kind:        SenderApp,
				Name:        "echo-client",
				Node:        1,
				Dst:         0,
				DstPort:     9,
				SrcPort:     49153,
				PayloadSize: 1024,
				Interval:    1,
				MaxPackets:  10,
				Start:       2,
				Stop:        12,
			},
		},
	}
}
