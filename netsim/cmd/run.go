package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/metrics"
	"github.com/sarchlab/netsim/simulation"
	"github.com/sarchlab/netsim/topology"
)

const sqliteAutoName = "auto"

type runOptions struct {
	scenario scenarioFlags

	asciiPath   string
	sqlitePath  string
	layoutPath  string
	format      string
	monitor     bool
	monitorPort int
	openBrowser bool
	hold        bool
}

func newRunCmd(c *cli) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and print its report.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, opts)
		},
	}

	opts.scenario.register(cmd)

	flags := cmd.Flags()
	flags.StringVar(&opts.asciiPath, "ascii", "", "write an ASCII trace to this file")
	flags.StringVar(&opts.sqlitePath, "sqlite", "",
		"write an SQLite trace to this file; without a value a unique name is picked")
	flags.Lookup("sqlite").NoOptDefVal = sqliteAutoName
	flags.StringVar(&opts.layoutPath, "layout", "", "write node positions as YAML to this file")
	flags.StringVarP(&opts.format, "output", "o", "text", "report format: text or json")
	flags.BoolVar(&opts.monitor, "monitor", false, "serve the monitor while running")
	flags.IntVar(&opts.monitorPort, "monitor-port", 0, "monitor port, random when unset")
	flags.BoolVar(&opts.openBrowser, "open-browser", false, "open the monitor in a browser")
	flags.BoolVar(&opts.hold, "hold", false,
		"keep the monitor up after the run until interrupted")

	return cmd
}

func (c *cli) run(cmd *cobra.Command, opts *runOptions) (err error) {
	ctx := cmd.Context()

	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown report format %q", opts.format)
	}

	spec, err := opts.scenario.load(cmd)
	if err != nil {
		return err
	}

	sim, err := c.buildSimulation(spec, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sim.Close(); err == nil {
			err = cerr
		}
	}()

	if err := topology.Populate(ctx, sim, spec); err != nil {
		return err
	}

	if addr := sim.MonitorAddr(); addr != "" && opts.openBrowser {
		if err := browser.OpenURL(addr); err != nil {
			c.logger.Warn(ctx, "cannot open browser", logging.Err(err))
		}
	}

	if err := sim.RunContext(ctx, spec.Horizon.Seconds()); err != nil {
		return err
	}

	if opts.layoutPath != "" {
		if err := sim.Layout().SaveYAML(opts.layoutPath); err != nil {
			return err
		}
	}

	if err := writeReport(cmd.OutOrStdout(), sim.Report(), opts.format); err != nil {
		return err
	}

	if opts.hold && sim.MonitorAddr() != "" {
		c.logger.Info(ctx, "run finished, monitor still serving; interrupt to exit",
			logging.String("url", sim.MonitorAddr()))
		<-ctx.Done()
	}

	return nil
}

func (c *cli) buildSimulation(spec topology.Spec, opts *runOptions) (*simulation.Simulation, error) {
	b := simulation.MakeBuilder().
		WithName(spec.Name).
		WithSeed(spec.Seed).
		WithLogger(c.logger)

	if opts.asciiPath != "" {
		b = b.WithASCIITrace(opts.asciiPath)
	}

	switch opts.sqlitePath {
	case "":
	case sqliteAutoName:
		b = b.WithSQLiteTrace("")
	default:
		b = b.WithSQLiteTrace(opts.sqlitePath)
	}

	if opts.monitor {
		collector, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}

		b = b.WithMonitoring().WithMetrics(collector)
		if opts.monitorPort > 0 {
			b = b.WithMonitorPort(opts.monitorPort)
		}
	}

	return b.Build()
}

func writeReport(w io.Writer, r simulation.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(r)
	}

	fmt.Fprintf(w, "scenario %s seed %d: end %.9f s, %d events, %d pending\n",
		r.Name, r.Seed, r.EndTime, r.Events, r.Pending)

	for _, s := range r.Sinks {
		fmt.Fprintf(w, "sink %s@n%d: %d packets, %d bytes, %d early, %d late, "+
			"delay %.9f s (std %.9f), %d echoes\n",
			s.Name, s.Node, s.Stats.Packets, s.Stats.Bytes,
			s.Stats.EarlyArrivals, s.Stats.LateArrivals,
			s.DelayMean, s.DelayStd, s.Stats.EchoesSent)
	}

	for _, s := range r.Senders {
		fmt.Fprintf(w, "sender %s@n%d: %d sent, %d bytes, %d failed, %d echoes\n",
			s.Name, s.Node, s.Stats.Sent, s.Stats.Bytes, s.Stats.Failed, s.Stats.Echoes)
	}

	for _, l := range r.Links {
		fmt.Fprintf(w, "link %s (%s %s, %g s): %d drops, %d collisions\n",
			l.Name, l.Kind, l.DataRate, l.Delay, l.Drops, l.Collisions)
	}

	return nil
}
