package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Each call returns fresh commands with
// their own flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "surge",
		Short:   "A staged load generator for HTTP services",
		Version: version,
		Long: `Surge drives a population of concurrent virtual users through a
piecewise-linear ramp (ramp up, hold, ramp down), with every user running
the same scripted sequence of HTTP requests in a loop.

Runs are described in a YAML or JSON file, or built from flags for a single
URL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error, disabled)")
	root.PersistentFlags().Bool("log-json", false, "Write logs as JSON instead of console text")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())

	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
