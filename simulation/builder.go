package simulation

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/metrics"
	"github.com/sarchlab/netsim/monitoring"
	"github.com/sarchlab/netsim/trace"
)

// Builder can be used to build a simulation together with its trace outputs,
// metrics and monitoring server.
type Builder struct {
	name        string
	seed        uint64
	logger      logging.Logger
	monitorOn   bool
	monitorPort int
	asciiPath   string
	sqliteOn    bool
	sqlitePath  string
	collector   *metrics.Collector
	sinks       []trace.Sink
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		name: "netsim",
		seed: 1,
	}
}

// WithName names the simulation.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithSeed sets the root seed.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logging.Logger) Builder {
	b.logger = l
	return b
}

// WithMonitoring serves the simulation state over HTTP while it runs.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithASCIITrace writes the trace as text to path.
func (b Builder) WithASCIITrace(path string) Builder {
	b.asciiPath = path
	return b
}

// WithSQLiteTrace writes the trace to an SQLite database. An empty path
// picks a unique file name.
func (b Builder) WithSQLiteTrace(path string) Builder {
	b.sqliteOn = true
	b.sqlitePath = path
	return b
}

// WithMetrics reports events and frames to c.
func (b Builder) WithMetrics(c *metrics.Collector) Builder {
	b.collector = c
	return b
}

// WithTraceSink adds a sink that receives every trace record.
func (b Builder) WithTraceSink(s trace.Sink) Builder {
	b.sinks = append(append([]trace.Sink(nil), b.sinks...), s)
	return b
}

func (b Builder) parametersMustBeValid() error {
	if !b.monitorOn && b.monitorPort != 0 {
		return errors.New("monitor port cannot be set when monitoring is disabled")
	}

	return nil
}

// Build builds the simulation. Output files are created and the monitoring
// server is started here.
func (b Builder) Build() (*Simulation, error) {
	if err := b.parametersMustBeValid(); err != nil {
		return nil, err
	}

	sinks := append([]trace.Sink(nil), b.sinks...)
	tee := trace.Tee(sinks)

	var observer *metrics.Observer
	if b.collector != nil {
		observer = b.collector.Observe(b.name, nil)
		tee = append(tee, observer)
	}

	var ascii *trace.ASCIIWriter
	if b.asciiPath != "" {
		var err error
		ascii, err = trace.CreateASCIIFile(b.asciiPath)
		if err != nil {
			return nil, err
		}

		tee = append(tee, ascii)
	}

	if b.sqliteOn {
		w := trace.NewSQLiteWriter(b.sqlitePath)
		if err := w.Init(); err != nil {
			if ascii != nil {
				_ = ascii.Close()
			}
			return nil, err
		}

		tee = append(tee, w)
	}

	opts := []Option{WithName(b.name), WithSeed(b.seed)}
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}

	switch len(tee) {
	case 0:
	case 1:
		opts = append(opts, WithTraceSink(tee[0]))
	default:
		opts = append(opts, WithTraceSink(tee))
	}

	s := New(opts...)

	if observer != nil {
		s.observer = observer
		s.engine.AcceptHook(observer)
	}

	if b.monitorOn {
		if err := b.startMonitor(s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	return s, nil
}

func (b Builder) startMonitor(s *Simulation) error {
	s.monitor = monitoring.NewMonitor().WithLogger(s.logger)
	if b.monitorPort > 0 {
		s.monitor.WithPortNumber(b.monitorPort)
	}

	s.monitor.RegisterEngine(s.engine)
	if b.collector != nil {
		s.monitor.RegisterMetrics(b.collector.Handler())
	}

	addr, err := s.monitor.StartServer()
	if err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	s.monitorAddr = addr

	return nil
}
