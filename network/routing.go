package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ComputeRoutes installs static shortest-hop routes on every node so that
// each node can reach every other node connected to it. Among equally short
// routes the lowest next-hop ID wins, then the lowest link ID.
func ComputeRoutes(nodes []*Node) error {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	for _, n := range nodes {
		if g.Node(int64(n.ID())) != nil {
			return fmt.Errorf("%w: duplicated node ID %d",
				ErrInvalidConfiguration, n.ID())
		}

		g.AddNode(simple.Node(n.ID()))
	}

	for _, n := range nodes {
		for _, l := range n.Links() {
			for _, peer := range l.Endpoints() {
				if peer == n || g.Node(int64(peer.ID())) == nil {
					continue
				}

				g.SetWeightedEdge(g.NewWeightedEdge(
					simple.Node(n.ID()), simple.Node(peer.ID()), 1))
			}
		}
	}

	dist := path.DijkstraAllPaths(g)

	for _, src := range nodes {
		for _, dst := range nodes {
			if src == dst {
				continue
			}

			total := dist.Weight(int64(src.ID()), int64(dst.ID()))
			if math.IsInf(total, 1) {
				continue
			}

			link, nextHop := pickNextHop(src, dst, total, dist)
			if link == nil {
				return fmt.Errorf("%w: no next hop from %d to %d",
					ErrInvalidConfiguration, src.ID(), dst.ID())
			}

			if err := src.SetRoute(dst.ID(), link, nextHop); err != nil {
				return err
			}
		}
	}

	return nil
}

func pickNextHop(
	src, dst *Node,
	total float64,
	dist path.AllShortest,
) (Link, NodeID) {
	var (
		best    Link
		bestHop NodeID
	)

	for _, l := range src.Links() {
		for _, peer := range l.Endpoints() {
			if peer == src {
				continue
			}

			rest := dist.Weight(int64(peer.ID()), int64(dst.ID()))
			if rest+1 != total {
				continue
			}

			if best == nil ||
				peer.ID() < bestHop ||
				(peer.ID() == bestHop && l.ID() < best.ID()) {
				best, bestHop = l, peer.ID()
			}
		}
	}

	return best, bestHop
}
