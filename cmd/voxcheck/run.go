package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/pkg/types"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Execute a scenario against captured agent responses",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	cmd.Flags().String("responses", "", "YAML or JSON file holding the ordered agent responses")
	cmd.Flags().StringArray("response", nil, "agent response for the next step (repeatable)")
	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	responses, err := gatherResponses(cmd)
	if err != nil {
		return err
	}
	if len(responses) < len(sc.Steps) {
		logger.Warn("fewer responses than steps; missing steps fail",
			"steps", len(sc.Steps), "responses", len(responses))
	}

	eng := newEngine(cmd.Context(), cfg, logger)
	defer eng.Close()

	res := eng.executor.ExecuteScenario(cmd.Context(), sc, responses)
	results := []*types.ScenarioResult{res}

	if err := writeReport(cmd.OutOrStdout(), cfg.Format, results); err != nil {
		return err
	}
	if anyFailed(results) {
		return errScenariosFailed
	}
	return nil
}

func gatherResponses(cmd *cobra.Command) ([]string, error) {
	var responses []string
	if path, _ := cmd.Flags().GetString("responses"); path != "" {
		fromFile, err := scenario.LoadResponses(path)
		if err != nil {
			return nil, err
		}
		responses = append(responses, fromFile...)
	}
	inline, err := cmd.Flags().GetStringArray("response")
	if err != nil {
		return nil, fmt.Errorf("parse --response: %w", err)
	}
	return append(responses, inline...), nil
}
