package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
)

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		engine *timing.SerialEngine
		a, b   *network.Node
		link   *network.PointToPointLink
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		m.Router().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		a = network.NewNode(0, "client")
		b = network.NewNode(1, "server")

		var err error
		link, err = network.MakePointToPointBuilder().
			WithEngine(engine).
			WithDataRate(network.Mbps).
			WithQueueCapacity(4).
			Build("uplink", a, b)
		Expect(err).NotTo(HaveOccurred())

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterNode(a)
		m.RegisterNode(b)
		m.RegisterLink(link)
	})

	It("should list registered nodes and links", func() {
		var names []string

		rec := get("/api/list_nodes")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"client", "server"}))

		rec = get("/api/list_links")
		Expect(json.Unmarshal(rec.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(Equal([]string{"uplink"}))
	})

	It("should find a node to describe", func() {
		rec := get("/api/node/server")

		Expect(rec.Code).NotTo(Equal(http.StatusNotFound))
	})

	It("should answer 404 for unknown elements", func() {
		Expect(get("/api/node/nobody").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/link/nothing").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/app/none").Code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		Expect(get("/api/field/notjson").Code).To(Equal(http.StatusBadRequest))
	})

	It("should report the simulation time", func() {
		_, err := engine.ScheduleFunc(1.5, func() {})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		var rsp struct {
			Now float64 `json:"now"`
		}
		Expect(json.Unmarshal(get("/api/now").Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Now).To(Equal(1.5))
	})

	It("should pause and continue the engine", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))

		_, err := engine.ScheduleFunc(1, func() {})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())
	})

	It("should answer 503 without an engine", func() {
		m = NewMonitor()

		Expect(get("/api/now").Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should list link queues", func() {
		for i := 0; i < 3; i++ {
			_, err := link.Transmit(&network.Frame{Dst: 1, NextHop: 1, PayloadSize: 100}, a)
			Expect(err).NotTo(HaveOccurred())
		}

		var queues []queueRsp
		rec := get("/api/queues?sort=percent")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &queues)).To(Succeed())
		Expect(queues).To(Equal([]queueRsp{{Link: "uplink", Level: 2, Capacity: 8}}))

		rec = get("/api/queues?offset=1")
		Expect(json.Unmarshal(rec.Body.Bytes(), &queues)).To(Succeed())
		Expect(queues).To(BeEmpty())
	})

	It("should reject bad queue parameters", func() {
		Expect(get("/api/queues?sort=size").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/queues?limit=x").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/queues?offset=-1").Code).To(Equal(http.StatusBadRequest))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("run", 100)
		bar.SetFinished(40)
		bar.SetInProgress(5)

		var bars []map[string]any
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["name"]).To(Equal("run"))
		Expect(bars[0]["finished"]).To(BeNumerically("==", 40))
		Expect(bars[0]["in_progress"]).To(BeNumerically("==", 5))

		bar.SetFinished(500)
		Expect(bar.Finished()).To(Equal(uint64(100)))
		Expect(bar.Snapshot().Total).To(Equal(uint64(100)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should report process resources", func() {
		rec := get("/api/resource")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("memory_size"))
	})

	It("should serve registered metrics", func() {
		Expect(get("/metrics").Code).To(Equal(http.StatusNotFound))

		m.RegisterMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("netsim_events_total 0\n"))
		}))

		Expect(get("/metrics").Body.String()).To(ContainSubstring("netsim_events_total"))
	})

	It("should serve over http", func() {
		addr, err := m.WithPortNumber(80).StartServer()
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.StopServer(context.Background())).To(Succeed()) }()

		rsp, err := http.Get(addr + "/api/list_links")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
