package network

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
	gomock "go.uber.org/mock/gomock"
)

type arrival struct {
	frame *Frame
	at    *Node
	time  timing.VTimeInSec
}

type recordingReceiver struct {
	engine   timing.TimeTeller
	arrivals []arrival
}

func (r *recordingReceiver) Receive(f *Frame, at *Node) error {
	r.arrivals = append(r.arrivals, arrival{
		frame: f,
		at:    at,
		time:  r.engine.CurrentTime(),
	})

	return nil
}

const tolerance = 1e-12

var _ = Describe("PointToPointLink", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEventScheduler
		a, b     *Node
		link     *PointToPointLink
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEventScheduler(mockCtrl)
		engine.EXPECT().CurrentTime().Return(timing.VTimeInSec(1)).AnyTimes()

		a = NewNode(0, "a")
		b = NewNode(1, "b")

		var err error
		link, err = MakePointToPointBuilder().
			WithEngine(engine).
			WithDataRate(1 * Mbps).
			WithPropagationDelay(2 * timing.Millisecond).
			Build("a-b", a, b)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should attach itself to both nodes", func() {
		Expect(a.Links()).To(ConsistOf(link))
		Expect(b.Links()).To(ConsistOf(link))
		Expect(link.Peer(a)).To(BeIdenticalTo(b))
		Expect(link.Peer(b)).To(BeIdenticalTo(a))
	})

	It("should schedule the end of transmission and the delivery", func() {
		f := &Frame{Src: 0, Dst: 1, NextHop: 1, PayloadSize: 1000}

		var scheduled []timing.ScheduledEvent
		engine.EXPECT().
			Schedule(gomock.Any()).
			DoAndReturn(func(evt timing.ScheduledEvent) (timing.EventHandle, error) {
				scheduled = append(scheduled, evt)
				return timing.EventHandle{}, nil
			}).
			Times(2)

		delay, err := link.Transmit(f, a)

		Expect(err).NotTo(HaveOccurred())
		Expect(float64(delay)).To(BeNumerically("~", 0.010, tolerance))

		Expect(scheduled).To(HaveLen(2))
		Expect(scheduled[0].Event).To(BeAssignableToTypeOf(&txDoneEvent{}))
		Expect(float64(scheduled[0].Time)).To(BeNumerically("~", 1.008, tolerance))
		Expect(scheduled[1].Event).To(Equal(&deliverEvent{frame: f, to: b}))
		Expect(float64(scheduled[1].Time)).To(BeNumerically("~", 1.010, tolerance))
		Expect(scheduled[1].Handler).To(BeIdenticalTo(link))
	})

	It("should queue a frame while the transmitter is busy", func() {
		engine.EXPECT().Schedule(gomock.Any()).Times(2)

		_, err := link.Transmit(&Frame{Dst: 1, PayloadSize: 1000}, a)
		Expect(err).NotTo(HaveOccurred())

		delay, err := link.Transmit(&Frame{Dst: 1, PayloadSize: 500}, a)
		Expect(err).NotTo(HaveOccurred())
		Expect(float64(delay)).To(BeNumerically("~", 0.014, tolerance))
		Expect(link.QueueLen()).To(Equal(1))
	})

	It("should not delay the opposite direction", func() {
		engine.EXPECT().Schedule(gomock.Any()).Times(4)

		_, err := link.Transmit(&Frame{Dst: 1, PayloadSize: 1000}, a)
		Expect(err).NotTo(HaveOccurred())

		delay, err := link.Transmit(&Frame{Dst: 0, PayloadSize: 1000}, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(float64(delay)).To(BeNumerically("~", 0.010, tolerance))
	})

	It("should reject frames from nodes not on the link", func() {
		stranger := NewNode(7, "stranger")

		_, err := link.Transmit(&Frame{Dst: 1}, stranger)

		Expect(err).To(MatchError(ErrNotAttached))
	})

	It("should reject frames with negative payload", func() {
		_, err := link.Transmit(&Frame{Dst: 1, PayloadSize: -1}, a)

		Expect(err).To(MatchError(ErrInvalidFrame))
	})

	It("should report unknown events", func() {
		Expect(link.Handle("nonsense")).To(HaveOccurred())
	})
})

var _ = Describe("PointToPointLink with a serial engine", func() {
	var (
		engine *timing.SerialEngine
		a, b   *Node
		rx     *recordingReceiver
	)

	build := func(capacity int) *PointToPointLink {
		l, err := MakePointToPointBuilder().
			WithEngine(engine).
			WithDataRate(1 * Mbps).
			WithPropagationDelay(2 * timing.Millisecond).
			WithQueueCapacity(capacity).
			WithID(3).
			Build("a-b", a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.SetRoute(1, l, 1)).To(Succeed())

		return l
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		a = NewNode(0, "a")
		b = NewNode(1, "b")
		rx = &recordingReceiver{engine: engine}
		Expect(b.Bind(9, rx)).To(Succeed())
	})

	It("should deliver after serialization plus propagation", func() {
		build(0)

		_, err := engine.ScheduleFunc(1, func() {
			_, err := a.Send(&Frame{Src: 0, Dst: 1, DstPort: 9, PayloadSize: 1000})
			Expect(err).NotTo(HaveOccurred())
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(rx.arrivals).To(HaveLen(1))
		Expect(float64(rx.arrivals[0].time)).To(BeNumerically("~", 1.010, tolerance))
		Expect(b.Stats.Delivered).To(Equal(uint64(1)))
	})

	It("should deliver a zero-byte frame after the propagation delay", func() {
		build(0)

		_, err := a.Send(&Frame{Src: 0, Dst: 1, DstPort: 9})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(rx.arrivals).To(HaveLen(1))
		Expect(float64(rx.arrivals[0].time)).To(BeNumerically("~", 0.002, tolerance))
	})

	It("should keep FIFO order and serialize back to back", func() {
		build(0)

		for seq := uint64(0); seq < 3; seq++ {
			_, err := a.Send(&Frame{Dst: 1, DstPort: 9, PayloadSize: 1000, Seq: seq})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(engine.Run()).To(Succeed())

		Expect(rx.arrivals).To(HaveLen(3))
		for i, arr := range rx.arrivals {
			Expect(arr.frame.Seq).To(Equal(uint64(i)))
			want := 0.008*float64(i+1) + 0.002
			Expect(float64(arr.time)).To(BeNumerically("~", want, 1e-9))
		}
	})

	It("should drop frames when the queue is full", func() {
		l := build(1)

		var drops []DropReason
		l.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == HookPosLinkDrop {
				drops = append(drops, ctx.Detail.(FrameEvent).Reason)
			}
		}))

		for i := 0; i < 3; i++ {
			_, err := a.Send(&Frame{Dst: 1, DstPort: 9, PayloadSize: 1000})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(engine.Run()).To(Succeed())

		Expect(rx.arrivals).To(HaveLen(2))
		Expect(l.Drops()).To(Equal(uint64(1)))
		Expect(drops).To(Equal([]DropReason{DropQueueFull}))
	})

	It("should fire hooks in transmission order", func() {
		l := build(0)

		var positions []string
		l.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos.Name)
		}))

		_, err := a.Send(&Frame{Dst: 1, DstPort: 9, PayloadSize: 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(positions).To(Equal([]string{
			HookPosLinkEnqueue.Name,
			HookPosLinkTxStart.Name,
			HookPosLinkDeliver.Name,
		}))
	})
})

var _ = Describe("PointToPointBuilder", func() {
	var (
		engine *timing.SerialEngine
		a, b   *Node
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		a = NewNode(0, "a")
		b = NewNode(1, "b")
	})

	DescribeTable("should reject invalid configurations",
		func(mutate func(PointToPointBuilder) PointToPointBuilder, z func() *Node) {
			builder := MakePointToPointBuilder().
				WithEngine(engine).
				WithDataRate(Mbps).
				WithPropagationDelay(timing.Millisecond)

			_, err := mutate(builder).Build("bad", a, z())

			Expect(err).To(MatchError(ErrInvalidConfiguration))
			Expect(a.Links()).To(BeEmpty())
		},
		Entry("zero data rate",
			func(b PointToPointBuilder) PointToPointBuilder { return b.WithDataRate(0) },
			func() *Node { return b }),
		Entry("negative delay",
			func(b PointToPointBuilder) PointToPointBuilder { return b.WithPropagationDelay(-1) },
			func() *Node { return b }),
		Entry("negative queue capacity",
			func(b PointToPointBuilder) PointToPointBuilder { return b.WithQueueCapacity(-1) },
			func() *Node { return b }),
		Entry("missing engine",
			func(b PointToPointBuilder) PointToPointBuilder { return b.WithEngine(nil) },
			func() *Node { return b }),
		Entry("same node on both ends",
			func(b PointToPointBuilder) PointToPointBuilder { return b },
			func() *Node { return a }),
	)
})
