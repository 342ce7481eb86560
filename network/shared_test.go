package network

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
)

var _ = Describe("SharedMediumLink", func() {
	const (
		rate  = 10 * Mbps
		delay = 6500 * timing.Nanosecond
	)

	var (
		engine    *timing.SerialEngine
		nodes     []*Node
		receivers []*recordingReceiver
	)

	build := func(collision bool) *SharedMediumLink {
		l, err := MakeSharedMediumBuilder().
			WithEngine(engine).
			WithDataRate(rate).
			WithPropagationDelay(delay).
			WithCollisionDetection(collision).
			Build("lan", nodes...)
		Expect(err).NotTo(HaveOccurred())
		Expect(ComputeRoutes(nodes)).To(Succeed())

		return l
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		nodes = nil
		receivers = nil

		for i := 0; i < 4; i++ {
			n := NewNode(NodeID(i), fmt.Sprintf("n%d", i))
			rx := &recordingReceiver{engine: engine}
			Expect(n.Bind(9, rx)).To(Succeed())

			nodes = append(nodes, n)
			receivers = append(receivers, rx)
		}
	})

	It("should deliver a broadcast frame once to every other node", func() {
		l := build(false)

		var delivered []NodeID
		l.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosLinkDeliver {
				delivered = append(delivered, ctx.Detail.(FrameEvent).Node.ID())
			}
		}))

		_, err := nodes[0].Send(&Frame{Src: 0, Dst: Broadcast, DstPort: 9, PayloadSize: 1024})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		want := float64(rate.SerializationDelay(1024) + delay)
		Expect(receivers[0].arrivals).To(BeEmpty())
		for _, rx := range receivers[1:] {
			Expect(rx.arrivals).To(HaveLen(1))
			Expect(float64(rx.arrivals[0].time)).To(BeNumerically("~", want, tolerance))
		}
		Expect(delivered).To(Equal([]NodeID{1, 2, 3}))
	})

	It("should let nodes discard frames addressed to others", func() {
		build(false)

		_, err := nodes[0].Send(&Frame{Src: 0, Dst: 2, DstPort: 9, PayloadSize: 64})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(receivers[2].arrivals).To(HaveLen(1))
		Expect(receivers[1].arrivals).To(BeEmpty())
		Expect(receivers[3].arrivals).To(BeEmpty())
		Expect(nodes[1].Stats.Observed).To(Equal(uint64(1)))
		Expect(nodes[3].Stats.Observed).To(Equal(uint64(1)))
	})

	It("should queue concurrent frames without collision detection", func() {
		l := build(false)
		busy := float64(rate.SerializationDelay(1024) + delay)

		first, err := l.Transmit(&Frame{Src: 0, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[0])
		Expect(err).NotTo(HaveOccurred())
		second, err := l.Transmit(&Frame{Src: 1, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[1])
		Expect(err).NotTo(HaveOccurred())

		Expect(float64(first)).To(BeNumerically("~", busy, tolerance))
		Expect(float64(second)).To(BeNumerically("~", 2*busy, tolerance))
		Expect(l.Busy()).To(BeTrue())
		Expect(l.QueueLen()).To(Equal(1))

		Expect(engine.Run()).To(Succeed())

		Expect(receivers[3].arrivals).To(HaveLen(2))
		Expect(receivers[3].arrivals[0].frame.Src).To(Equal(NodeID(0)))
		Expect(receivers[3].arrivals[1].frame.Src).To(Equal(NodeID(1)))
		Expect(float64(receivers[3].arrivals[1].time)).To(BeNumerically("~", 2*busy, tolerance))
		Expect(l.Busy()).To(BeFalse())
	})

	It("should drop both frames on a collision", func() {
		l := build(true)
		Expect(l.CollisionDetection()).To(BeTrue())

		var dropped []NodeID
		l.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosLinkDrop {
				Expect(ctx.Detail.(FrameEvent).Reason).To(Equal(DropCollision))
				dropped = append(dropped, ctx.Item.(*Frame).Src)
			}
		}))

		_, err := l.Transmit(&Frame{Src: 0, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[0])
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.ScheduleFunc(100*timing.Microsecond, func() {
			_, err := l.Transmit(&Frame{Src: 1, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[1])
			Expect(err).To(MatchError(ErrCollision))
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())

		Expect(receivers[3].arrivals).To(BeEmpty())
		Expect(l.Collisions).To(Equal(uint64(1)))
		Expect(l.Drops).To(Equal(uint64(2)))
		Expect(dropped).To(Equal([]NodeID{1, 0}))
	})

	It("should accept a transmission once the channel is free again", func() {
		l := build(true)
		busy := rate.SerializationDelay(1024) + delay

		_, err := l.Transmit(&Frame{Src: 0, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[0])
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.ScheduleFunc(2*busy, func() {
			_, err := l.Transmit(&Frame{Src: 1, Dst: 3, NextHop: 3, DstPort: 9, PayloadSize: 1024}, nodes[1])
			Expect(err).NotTo(HaveOccurred())
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(receivers[3].arrivals).To(HaveLen(2))
		Expect(l.Collisions).To(BeZero())
	})

	It("should need at least two nodes", func() {
		_, err := MakeSharedMediumBuilder().
			WithEngine(engine).
			WithDataRate(rate).
			Build("lonely", nodes[0])

		Expect(err).To(MatchError(ErrInvalidConfiguration))
	})

	It("should reject a zero data rate", func() {
		_, err := MakeSharedMediumBuilder().
			WithEngine(engine).
			Build("slow", nodes...)

		Expect(err).To(MatchError(ErrInvalidConfiguration))
	})
})
