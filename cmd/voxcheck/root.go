package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxcheck",
		Short:         "Voxcheck validates voice-agent conversations against scripted scenarios",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "config file (default ./voxcheck.yaml when present)")
	persistent.Float64("threshold", 0, "default step tolerance threshold in [0, 1]")
	persistent.String("aggregation", "", "overall score aggregation (mean|min)")
	persistent.Duration("step-timeout", 0, "upper bound on a single step validation")
	persistent.String("provider", "", "embedding provider (auto|openai|onnx|hash)")
	persistent.Bool("no-cache", false, "disable the embedding cache")
	persistent.String("store", "", "path of the execution store database")
	persistent.Int("workers", 0, "parallel stored executions")
	persistent.String("format", "pretty", "output format (pretty|json|markdown)")
	persistent.BoolP("verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
