package app

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
	gomock "go.uber.org/mock/gomock"
)

func connectPair(
	engine timing.EventScheduler,
	rate network.DataRate,
	delay timing.VTimeInSec,
) (*network.Node, *network.Node) {
	a := network.NewNode(0, "a")
	b := network.NewNode(1, "b")

	_, err := network.MakePointToPointBuilder().
		WithEngine(engine).
		WithDataRate(rate).
		WithPropagationDelay(delay).
		Build("a-b", a, b)
	Expect(err).NotTo(HaveOccurred())
	Expect(network.ComputeRoutes([]*network.Node{a, b})).To(Succeed())

	return a, b
}

var _ = Describe("Sender", func() {
	var (
		engine  *timing.SerialEngine
		builder Builder
		a, b    *network.Node
		sink    *Sink
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		builder = MakeBuilder().WithEngine(engine)
		a, b = connectPair(engine, network.Mbps, 2*timing.Millisecond)

		var err error
		sink, err = builder.BuildSink("sink", b, SinkConfig{Port: 9})
		Expect(err).NotTo(HaveOccurred())
		Expect(Install(engine, sink)).To(Succeed())
	})

	install := func(cfg SenderConfig) *Sender {
		s, err := builder.BuildSender("sender", a, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(Install(engine, s)).To(Succeed())

		return s
	}

	It("should send one packet per interval while active", func() {
		s := install(SenderConfig{
			Dst: 1, DstPort: 9, SrcPort: 100, PayloadSize: 125,
			Interval: 1, StartTime: 2, StopTime: 5,
		})

		Expect(s.State()).To(Equal(StateIdle))
		Expect(engine.Run()).To(Succeed())

		Expect(s.State()).To(Equal(StateStopped))
		Expect(s.Stats.Sent).To(Equal(uint64(3)))
		Expect(s.Stats.Bytes).To(Equal(uint64(375)))
		Expect(sink.Stats.Packets).To(Equal(uint64(3)))

		first, ok := sink.FirstArrival()
		Expect(ok).To(BeTrue())
		Expect(float64(first)).To(BeNumerically("~", 2.003, 1e-12))
	})

	It("should cancel the pending send when it stops", func() {
		s := install(SenderConfig{
			Dst: 1, DstPort: 9, SrcPort: 100, PayloadSize: 125,
			Interval: 1, StartTime: 2, StopTime: 3.5,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(s.Stats.Sent).To(Equal(uint64(2)))
		Expect(engine.CurrentTime()).To(Equal(timing.VTimeInSec(3.5)))
		Expect(engine.Pending()).To(BeZero())
	})

	It("should stop after the maximum number of packets", func() {
		s := install(SenderConfig{
			Dst: 1, DstPort: 9, SrcPort: 100, PayloadSize: 64,
			Interval: 1, MaxPackets: 10, StartTime: 2,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(s.Stats.Sent).To(Equal(uint64(10)))
		Expect(sink.Stats.Packets).To(Equal(uint64(10)))
		Expect(s.State()).To(Equal(StateSending))
	})

	It("should derive the interval from the data rate", func() {
		cfg := SenderConfig{PayloadSize: 512, DataRate: 500 * network.Kbps}

		Expect(float64(cfg.PacketInterval())).To(BeNumerically("~", 0.008192, 1e-15))
	})

	It("should only send during on periods", func() {
		s := install(SenderConfig{
			Dst: 1, DstPort: 9, SrcPort: 100, PayloadSize: 10,
			Interval: 0.125,
			OnTime:   Constant(0.5), OffTime: Constant(0.5),
			StopTime: 1.5,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(s.Stats.Sent).To(Equal(uint64(8)))
		Expect(sink.Stats.Packets).To(Equal(uint64(8)))
	})

	It("should keep its cadence when the off time is zero", func() {
		s := install(SenderConfig{
			Dst: 1, DstPort: 9, SrcPort: 100, PayloadSize: 10,
			Interval: 0.25,
			OnTime:   Constant(1), OffTime: Constant(0),
			StopTime: 3,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(s.Stats.Sent).To(Equal(uint64(12)))
	})

	DescribeTable("should reject invalid configurations",
		func(cfg SenderConfig) {
			_, err := builder.BuildSender("bad", a, cfg)

			Expect(err).To(MatchError(network.ErrInvalidConfiguration))
		},
		Entry("no interval and no rate", SenderConfig{Dst: 1, PayloadSize: 10}),
		Entry("rate with empty payload", SenderConfig{Dst: 1, DataRate: network.Mbps}),
		Entry("negative payload", SenderConfig{Dst: 1, PayloadSize: -1, Interval: 1}),
		Entry("stop before start",
			SenderConfig{Dst: 1, PayloadSize: 1, Interval: 1, StartTime: 3, StopTime: 2}),
	)

	It("should refuse a source port that is already bound", func() {
		_, err := builder.BuildSender("sender", b, SenderConfig{
			Dst: 0, PayloadSize: 1, Interval: 1, SrcPort: 9,
		})

		Expect(err).To(MatchError(network.ErrInvalidConfiguration))
	})
})

var _ = Describe("Sink", func() {
	var (
		mockCtrl  *gomock.Controller
		traceSink *MockSink
		engine    *timing.SerialEngine
		node      *network.Node
		sink      *Sink
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		traceSink = NewMockSink(mockCtrl)
		engine = timing.NewSerialEngine()
		node = network.NewNode(3, "server")

		var err error
		sink, err = MakeBuilder().
			WithEngine(engine).
			WithTraceSink(traceSink).
			BuildSink("sink", node, SinkConfig{Port: 9, StartTime: 1, StopTime: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(Install(engine, sink)).To(Succeed())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	deliverAt := func(t timing.VTimeInSec, f *network.Frame) {
		_, err := engine.ScheduleFunc(t, func() {
			Expect(sink.Receive(f, node)).To(Succeed())
		})
		Expect(err).NotTo(HaveOccurred())
	}

	It("should count frames inside its listening window only", func() {
		traceSink.EXPECT().
			Record(gomock.Any()).
			Do(func(r trace.Record) {
				Expect(r.Kind).To(Equal(trace.KindAppReceive))
				Expect(r.NodeID).To(Equal(network.NodeID(3)))
				Expect(r.LinkID).To(Equal(trace.NoLink))
			}).
			Times(2)

		deliverAt(0.5, &network.Frame{ID: 1, PayloadSize: 100})
		deliverAt(1, &network.Frame{ID: 2, PayloadSize: 100, SendTime: 0.75})
		deliverAt(5, &network.Frame{ID: 3, PayloadSize: 50, SendTime: 4.25})
		deliverAt(10, &network.Frame{ID: 4, PayloadSize: 100})
		deliverAt(11, &network.Frame{ID: 5, PayloadSize: 100})

		Expect(engine.Run()).To(Succeed())

		Expect(sink.Stats.Packets).To(Equal(uint64(2)))
		Expect(sink.Stats.Bytes).To(Equal(uint64(150)))
		Expect(sink.Stats.EarlyArrivals).To(Equal(uint64(1)))
		Expect(sink.Stats.LateArrivals).To(Equal(uint64(2)))
		Expect(sink.State()).To(Equal(StateStopped))

		mean, std := sink.Delay()
		Expect(mean).To(BeNumerically("~", 0.5, 1e-12))
		Expect(std).To(BeNumerically("~", 0.353553390593, 1e-9))
	})

	It("should listen between its start and stop events", func() {
		Expect(engine.RunUntil(0.5)).To(Succeed())
		Expect(sink.State()).To(Equal(StateIdle))

		Expect(engine.RunUntil(2)).To(Succeed())
		Expect(sink.State()).To(Equal(StateListening))
		Expect(sink.State().String()).To(Equal("listening"))
	})
})

var _ = Describe("Echo", func() {
	It("should return every request over a shared segment", func() {
		engine := timing.NewSerialEngine()
		nodes := []*network.Node{
			network.NewNode(0, "server"), network.NewNode(1, "client"),
			network.NewNode(2, "n2"), network.NewNode(3, "n3"),
		}
		lan, err := network.MakeSharedMediumBuilder().
			WithEngine(engine).
			WithDataRate(10 * network.Mbps).
			WithPropagationDelay(6500 * timing.Nanosecond).
			Build("lan", nodes...)
		Expect(err).NotTo(HaveOccurred())
		Expect(network.ComputeRoutes(nodes)).To(Succeed())

		builder := MakeBuilder().WithEngine(engine)
		server, err := builder.BuildSink("server", nodes[0],
			SinkConfig{Port: 9, Echo: true, StartTime: 1, StopTime: 12})
		Expect(err).NotTo(HaveOccurred())
		client, err := builder.BuildSender("client", nodes[1], SenderConfig{
			Dst: 0, DstPort: 9, SrcPort: 49153, PayloadSize: 1024,
			Interval: 1, MaxPackets: 10, StartTime: 2, StopTime: 12,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(Install(engine, server)).To(Succeed())
		Expect(Install(engine, client)).To(Succeed())

		Expect(engine.Run()).To(Succeed())

		oneWay := float64(lan.DataRate().SerializationDelay(1024) + lan.PropagationDelay())
		Expect(server.Stats.Packets).To(Equal(uint64(10)))
		Expect(server.Stats.EchoesSent).To(Equal(uint64(10)))
		for _, d := range server.Delays() {
			Expect(d).To(BeNumerically("~", oneWay, 1e-9))
		}

		Expect(client.Stats.Echoes).To(Equal(uint64(10)))
		rtt, _ := client.RoundTrip()
		Expect(rtt).To(BeNumerically("~", 2*oneWay, 1e-9))
		Expect(nodes[2].Stats.Observed).To(Equal(uint64(20)))
	})
})

var _ = Describe("Distributions", func() {
	It("should repeat exponential samples for equal seeds", func() {
		d1, err := NewExponential(0.5, 42)
		Expect(err).NotTo(HaveOccurred())
		d2, err := NewExponential(0.5, 42)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 20; i++ {
			x := d1.Sample()
			Expect(x).To(Equal(d2.Sample()))
			Expect(x).To(BeNumerically(">=", 0))
		}
		Expect(d1.Mean()).To(Equal(timing.VTimeInSec(0.5)))
	})

	It("should reject a non-positive mean", func() {
		_, err := NewExponential(0, 1)
		Expect(err).To(MatchError(network.ErrInvalidConfiguration))
	})
})
