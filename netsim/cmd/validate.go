package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/topology"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check scenario files without running them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error

			for _, path := range args {
				spec, err := topology.Load(path)
				if err == nil {
					err = spec.Validate()
				}

				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					errs = append(errs, err)
					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d nodes, %d links, %d applications\n",
					path, spec.Nodes, len(spec.Links), len(spec.Applications))
			}

			return errors.Join(errs...)
		},
	}
}
