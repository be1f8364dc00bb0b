package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	if flags.Changed("threshold") {
		v, err := flags.GetFloat64("threshold")
		if err != nil {
			return values, fmt.Errorf("parse --threshold: %w", err)
		}
		values.Threshold = config.FloatFlag{Value: v, Set: true}
	}

	if flags.Changed("aggregation") {
		v, err := flags.GetString("aggregation")
		if err != nil {
			return values, fmt.Errorf("parse --aggregation: %w", err)
		}
		values.Aggregation = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("step-timeout") {
		v, err := flags.GetDuration("step-timeout")
		if err != nil {
			return values, fmt.Errorf("parse --step-timeout: %w", err)
		}
		values.StepTimeout = config.DurationFlag{Value: v, Set: true}
	}

	if flags.Changed("provider") {
		v, err := flags.GetString("provider")
		if err != nil {
			return values, fmt.Errorf("parse --provider: %w", err)
		}
		values.Provider = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("no-cache") {
		v, err := flags.GetBool("no-cache")
		if err != nil {
			return values, fmt.Errorf("parse --no-cache: %w", err)
		}
		values.NoCache = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("store") {
		v, err := flags.GetString("store")
		if err != nil {
			return values, fmt.Errorf("parse --store: %w", err)
		}
		values.StorePath = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("workers") {
		v, err := flags.GetInt("workers")
		if err != nil {
			return values, fmt.Errorf("parse --workers: %w", err)
		}
		values.Workers = config.IntFlag{Value: v, Set: true}
	}

	if flags.Changed("format") {
		v, err := flags.GetString("format")
		if err != nil {
			return values, fmt.Errorf("parse --format: %w", err)
		}
		values.Format = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return values, fmt.Errorf("parse --verbose: %w", err)
		}
		values.Verbose = config.BoolFlag{Value: v, Set: true}
	}

	return values, nil
}
