package network

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/timing"
)

var _ = Describe("Node", func() {
	var (
		engine *timing.SerialEngine
		node   *Node
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		node = NewNode(4, "host")
	})

	It("should refuse binding a port twice", func() {
		rx := &recordingReceiver{engine: engine}

		Expect(node.Bind(7, rx)).To(Succeed())
		Expect(node.Bind(7, rx)).To(MatchError(ErrInvalidConfiguration))
		Expect(node.Bind(8, nil)).To(MatchError(ErrInvalidConfiguration))
	})

	It("should report a missing route", func() {
		_, err := node.Send(&Frame{Src: 4, Dst: 5})

		Expect(err).To(MatchError(ErrNoRoute))
	})

	It("should not route through foreign links", func() {
		other := NewNode(5, "other")
		third := NewNode(6, "third")
		l, err := MakePointToPointBuilder().
			WithEngine(engine).
			WithDataRate(Mbps).
			Build("other-third", other, third)
		Expect(err).NotTo(HaveOccurred())

		Expect(node.SetRoute(6, l, 6)).To(MatchError(ErrInvalidConfiguration))
	})

	It("should count frames for unbound ports", func() {
		f := &Frame{Src: 1, Dst: 4, NextHop: 4, DstPort: 80}

		Expect(node.Receive(f, nil)).To(Succeed())
		Expect(node.Stats.NoReceiver).To(Equal(uint64(1)))
	})
})

var _ = Describe("ComputeRoutes", func() {
	var engine *timing.SerialEngine

	chain := func(n int) ([]*Node, []*PointToPointLink) {
		nodes := make([]*Node, n)
		for i := range nodes {
			nodes[i] = NewNode(NodeID(i), fmt.Sprintf("n%d", i))
		}

		links := make([]*PointToPointLink, 0, n-1)
		for i := 0; i+1 < n; i++ {
			l, err := MakePointToPointBuilder().
				WithEngine(engine).
				WithDataRate(Mbps).
				WithPropagationDelay(2 * timing.Millisecond).
				WithID(LinkID(i)).
				Build(fmt.Sprintf("l%d", i), nodes[i], nodes[i+1])
			Expect(err).NotTo(HaveOccurred())

			links = append(links, l)
		}

		return nodes, links
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
	})

	It("should forward frames along a chain", func() {
		nodes, links := chain(4)
		Expect(ComputeRoutes(nodes)).To(Succeed())

		link, hop, ok := nodes[0].Route(3)
		Expect(ok).To(BeTrue())
		Expect(link).To(BeIdenticalTo(links[0]))
		Expect(hop).To(Equal(NodeID(1)))

		rx := &recordingReceiver{engine: engine}
		Expect(nodes[3].Bind(9, rx)).To(Succeed())

		_, err := nodes[0].Send(&Frame{Src: 0, Dst: 3, DstPort: 9, PayloadSize: 1000})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(rx.arrivals).To(HaveLen(1))
		Expect(rx.arrivals[0].frame.Hops).To(Equal(2))
		Expect(float64(rx.arrivals[0].time)).To(BeNumerically("~", 3*0.010, 1e-9))
		Expect(nodes[1].Stats.Forwarded).To(Equal(uint64(1)))
		Expect(nodes[2].Stats.Forwarded).To(Equal(uint64(1)))
	})

	It("should break ties by the lowest next hop", func() {
		nodes := []*Node{NewNode(0, "a"), NewNode(1, "b"), NewNode(2, "c"), NewNode(3, "d")}
		connect := func(id LinkID, x, y int) {
			_, err := MakePointToPointBuilder().
				WithEngine(engine).
				WithDataRate(Mbps).
				WithID(id).
				Build(fmt.Sprintf("l%d", id), nodes[x], nodes[y])
			Expect(err).NotTo(HaveOccurred())
		}
		connect(0, 0, 2)
		connect(1, 0, 1)
		connect(2, 2, 3)
		connect(3, 1, 3)

		Expect(ComputeRoutes(nodes)).To(Succeed())

		link, hop, ok := nodes[0].Route(3)
		Expect(ok).To(BeTrue())
		Expect(hop).To(Equal(NodeID(1)))
		Expect(link.ID()).To(Equal(LinkID(1)))
	})

	It("should prefer the lowest link ID between the same neighbours", func() {
		a, b := NewNode(0, "a"), NewNode(1, "b")
		for _, id := range []LinkID{5, 2} {
			_, err := MakePointToPointBuilder().
				WithEngine(engine).
				WithDataRate(Mbps).
				WithID(id).
				Build(fmt.Sprintf("l%d", id), a, b)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(ComputeRoutes([]*Node{a, b})).To(Succeed())

		link, _, _ := a.Route(1)
		Expect(link.ID()).To(Equal(LinkID(2)))
	})

	It("should leave unreachable nodes without a route", func() {
		nodes, _ := chain(2)
		island := NewNode(9, "island")

		Expect(ComputeRoutes(append(nodes, island))).To(Succeed())

		_, _, ok := nodes[0].Route(9)
		Expect(ok).To(BeFalse())
	})

	It("should reject duplicated node IDs", func() {
		Expect(ComputeRoutes([]*Node{NewNode(1, "x"), NewNode(1, "y")})).
			To(MatchError(ErrInvalidConfiguration))
	})
})
