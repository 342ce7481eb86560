package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/topology"
)

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List or export the built-in scenarios.",
	}

	cmd.AddCommand(newScenariosListCmd(), newScenariosExportCmd())

	return cmd
}

func newScenariosListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range topology.PresetNames() {
				spec, _ := topology.Preset(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, spec.Description)
			}

			return nil
		},
	}
}

func newScenariosExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write a built-in scenario as a file to start from.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, ok := topology.Preset(args[0])
			if !ok {
				return fmt.Errorf("unknown preset %q", args[0])
			}

			if output != "" {
				return topology.Save(output, spec)
			}

			return topology.Encode(cmd.OutOrStdout(), spec, topology.Format(format))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(topology.YAML),
		"yaml or json, when writing to stdout")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"write to this file; the extension picks the format")

	return cmd
}
