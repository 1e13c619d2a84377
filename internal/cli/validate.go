package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/ramp"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a run file without running it",
		Long: `Check a run file against the run file schema and the load and step
rules, then print the resulting timeline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}
			config.ApplyDefaults(runCfg)
			if err := runCfg.Validate(); err != nil {
				return err
			}

			rampCfg := runCfg.RampConfig()
			timeline, err := ramp.NewTimeline(rampCfg.StartVUs, rampCfg.Stages)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: valid\n", args[0])
			fmt.Fprintf(out, "  stages:   %d\n", len(timeline.Stages()))
			fmt.Fprintf(out, "  duration: %s\n", timeline.TotalDuration().Round(time.Millisecond))
			fmt.Fprintf(out, "  peak:     %d workers\n", timeline.MaxTarget())
			fmt.Fprintf(out, "  steps:    %d\n", len(runCfg.Steps))
			return nil
		},
	}
}
