package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario-file>...",
		Short: "Check scenario files against the scenario schema",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	var errs []error
	out := cmd.OutOrStdout()
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s\n  %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d steps)\n", path, len(sc.Steps))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d scenario files invalid: %w", len(errs), len(args), errors.Join(errs...))
	}
	return nil
}
