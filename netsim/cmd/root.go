// Package cmd provides the command-line interface of the network simulator.
package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/observability"
)

const defaultEnvFile = ".env"

type cli struct {
	logger          logging.Logger
	shutdownTracing func(context.Context) error

	envFile   string
	logLevel  string
	logFormat string
}

// NewRootCommand creates the netsim command tree. Reports go to the command
// output and logs go to its error stream.
func NewRootCommand() *cobra.Command {
	c := &cli{logger: logging.Noop()}

	rootCmd := &cobra.Command{
		Use:   "netsim",
		Short: "netsim runs discrete-event simulations of small packet networks.",
		Long: `netsim runs discrete-event simulations of small packet networks. ` +
			`Scenarios come from YAML or JSON files or from built-in presets, ` +
			`and runs can write ASCII or SQLite traces and serve a monitor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setUp(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			observability.ShutdownWithTimeout(cmd.Context(), c.shutdownTracing, c.logger)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", defaultEnvFile,
		"file with NETSIM_* defaults, ignored when missing")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&c.logFormat, "log-format", "", "text or json")

	rootCmd.AddCommand(
		newRunCmd(c),
		newCheckDeterminismCmd(c),
		newScenariosCmd(),
		newValidateCmd(),
	)

	return rootCmd
}

func (c *cli) setUp(cmd *cobra.Command) error {
	if err := loadEnvFile(c.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg := logging.Config{Level: "info", Format: "text", Output: cmd.ErrOrStderr()}
	c.logger = logging.NewFromEnv(cfg)

	if c.logLevel != "" || c.logFormat != "" {
		if c.logLevel != "" {
			cfg.Level = c.logLevel
		}
		if c.logFormat != "" {
			cfg.Format = c.logFormat
		}
		c.logger = logging.New(cfg)
	}

	shutdown, err := observability.InitTracing(cmd.Context(),
		observability.TracingConfigFromEnv(), c.logger)
	if err != nil {
		return err
	}

	c.shutdownTracing = shutdown

	return nil
}

// loadEnvFile reads NETSIM_* defaults. Variables already set in the
// environment win. A missing file is only an error if it was asked for.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}

	return err
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}

	return 0
}
