// Package metrics exports simulation progress and frame counters to
// Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/timing"
	"github.com/sarchlab/netsim/trace"
)

// Collector bundles the Prometheus metrics of every simulation that runs in
// the process. Each simulation reports through its own Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Events       *prometheus.CounterVec
	Frames       *prometheus.CounterVec
	Bytes        *prometheus.CounterVec
	SimTime      *prometheus.GaugeVec
	Topology     *prometheus.GaugeVec
	RunDurations *prometheus.HistogramVec
}

// NewCollector registers the simulator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_events_total",
		Help: "Number of events dispatched by the engine.",
	}, []string{"sim"}), "netsim_events_total")
	if err != nil {
		return nil, err
	}

	frames, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_frames_total",
		Help: "Number of traced frame events, labeled by record kind and link.",
	}, []string{"sim", "kind", "link"}), "netsim_frames_total")
	if err != nil {
		return nil, err
	}

	bytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_bytes_total",
		Help: "Payload bytes of traced frame events, labeled by record kind and link.",
	}, []string{"sim", "kind", "link"}), "netsim_bytes_total")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netsim_sim_time_seconds",
		Help: "Current simulation time.",
	}, []string{"sim"}), "netsim_sim_time_seconds")
	if err != nil {
		return nil, err
	}

	topology, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netsim_topology_size",
		Help: "Number of nodes, links and applications in a simulation.",
	}, []string{"sim", "element"}), "netsim_topology_size")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netsim_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 60, 300},
	}, []string{"sim"}), "netsim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		Events:       events,
		Frames:       frames,
		Bytes:        bytes,
		SimTime:      simTime,
		Topology:     topology,
		RunDurations: durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Observe creates the Observer of one simulation. The observer counts the
// events of engine and should also be used as a trace sink of the
// simulation.
func (c *Collector) Observe(sim string, engine timing.Engine) *Observer {
	o := &Observer{collector: c, sim: sim}
	if engine != nil {
		engine.AcceptHook(o)
	}

	return o
}

// An Observer feeds the metrics of one simulation.
type Observer struct {
	collector *Collector
	sim       string
}

// Func counts dispatched events and follows the simulation time.
func (o *Observer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent {
		return
	}

	o.collector.Events.WithLabelValues(o.sim).Inc()

	if evt, ok := ctx.Item.(*timing.ScheduledEvent); ok {
		o.collector.SimTime.WithLabelValues(o.sim).Set(float64(evt.Time))
	}
}

// Record counts a traced frame event.
func (o *Observer) Record(r trace.Record) {
	link := "-"
	if r.LinkID != trace.NoLink {
		link = strconv.Itoa(int(r.LinkID))
	}

	kind := string(r.Kind)
	o.collector.Frames.WithLabelValues(o.sim, kind, link).Inc()
	o.collector.Bytes.WithLabelValues(o.sim, kind, link).Add(float64(r.Bytes))
}

// SetTopology publishes the size of the simulated network.
func (o *Observer) SetTopology(nodes, links, apps int) {
	o.collector.Topology.WithLabelValues(o.sim, "nodes").Set(float64(nodes))
	o.collector.Topology.WithLabelValues(o.sim, "links").Set(float64(links))
	o.collector.Topology.WithLabelValues(o.sim, "applications").Set(float64(apps))
}

// ObserveRun records how long a run took on the wall clock.
func (o *Observer) ObserveRun(d time.Duration) {
	o.collector.RunDurations.WithLabelValues(o.sim).Observe(d.Seconds())
}

var (
	_ trace.Sink   = (*Observer)(nil)
	_ hooking.Hook = (*Observer)(nil)
)

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
