package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/topology"
)

const defaultPreset = "p2p-chain"

// scenarioFlags selects a scenario from a file or a preset.
type scenarioFlags struct {
	path    string
	preset  string
	horizon string
	seed    uint64
}

func (f *scenarioFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.path, "scenario", "s", "", "scenario file (.yaml, .yml or .json)")
	flags.StringVarP(&f.preset, "preset", "p", defaultPreset,
		"built-in scenario: "+strings.Join(topology.PresetNames(), ", "))
	flags.StringVar(&f.horizon, "horizon", "",
		"stop time, as a Go duration or seconds; 0 runs until no event is left")
	flags.Uint64Var(&f.seed, "seed", 0, "root seed, overriding the scenario")
}

// load returns the validated scenario with the command-line overrides
// applied.
func (f *scenarioFlags) load(cmd *cobra.Command) (topology.Spec, error) {
	var spec topology.Spec

	if f.path != "" {
		var err error
		if spec, err = topology.Load(f.path); err != nil {
			return topology.Spec{}, err
		}
	} else {
		var ok bool
		if spec, ok = topology.Preset(f.preset); !ok {
			return topology.Spec{}, fmt.Errorf("unknown preset %q, choose one of %s",
				f.preset, strings.Join(topology.PresetNames(), ", "))
		}
	}

	if f.horizon != "" {
		h, err := topology.ParseDuration(f.horizon)
		if err != nil {
			return topology.Spec{}, err
		}
		spec.Horizon = h
	}

	if cmd.Flags().Changed("seed") {
		spec.Seed = f.seed
	}

	if spec.Seed == 0 {
		spec.Seed = 1
	}

	if err := spec.Validate(); err != nil {
		return topology.Spec{}, err
	}

	return spec, nil
}
