package cmd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/simulation"
	"github.com/sarchlab/netsim/topology"
	"github.com/sarchlab/netsim/trace"
)

// ErrNondeterministic reports replicas whose traces differ.
var ErrNondeterministic = errors.New("replicas produced different traces")

func newCheckDeterminismCmd(c *cli) *cobra.Command {
	var (
		flags    scenarioFlags
		replicas int
	)

	cmd := &cobra.Command{
		Use:   "check-determinism",
		Short: "Run a scenario several times at once and compare the traces.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if replicas < 2 {
				return fmt.Errorf("need at least 2 replicas, got %d", replicas)
			}

			spec, err := flags.load(cmd)
			if err != nil {
				return err
			}

			digests, err := runReplicas(spec, replicas)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, d := range digests {
				fmt.Fprintf(out, "replica %d: %d records, sha256 %s\n", i, d.Count(), d.Sum())
			}

			for _, d := range digests[1:] {
				if d.Sum() != digests[0].Sum() {
					c.logger.Error(cmd.Context(), "traces differ",
						logging.String("scenario", spec.Name))
					return fmt.Errorf("%s: %w", spec.Name, ErrNondeterministic)
				}
			}

			fmt.Fprintf(out, "%s is deterministic over %d replicas\n", spec.Name, replicas)

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&replicas, "replicas", "n", 2, "number of concurrent replicas")

	return cmd
}

// runReplicas runs independent copies of spec concurrently, each hashing its
// own trace.
func runReplicas(spec topology.Spec, n int) ([]*trace.DigestSink, error) {
	digests := make([]*trace.DigestSink, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range digests {
		digests[i] = trace.NewDigestSink()

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = runReplica(spec, digests[i])
		}(i)
	}
	wg.Wait()

	return digests, errors.Join(errs...)
}

func runReplica(spec topology.Spec, digest *trace.DigestSink) error {
	sim, err := topology.Build(spec, simulation.WithTraceSink(digest))
	if err != nil {
		return err
	}

	if err := sim.Run(spec.Horizon.Seconds()); err != nil {
		return err
	}

	return sim.Close()
}
