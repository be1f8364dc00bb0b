package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/config"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/internal/store"
)

func openStore(cfg config.Config) (*store.Store, error) {
	if err := ensureParentDir(cfg.Store.Path); err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Path)
}

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <scenario-file>",
		Short: "Store a scenario and a pending execution of its captured responses",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnqueue,
	}
	cmd.Flags().String("responses", "", "YAML or JSON file holding the ordered agent responses")
	cmd.Flags().StringArray("response", nil, "agent response for the next step (repeatable)")
	return cmd
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if sc.ID == "" {
		return fmt.Errorf("%s: scenario id is required to store it", args[0])
	}
	responses, err := gatherResponses(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.SaveScenario(ctx, sc); err != nil {
		return err
	}
	id, err := st.CreateExecution(ctx, sc.ID, responses)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <scenario-id>",
		Short: "Summarize persisted step scores of a scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.StepStats(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Format == config.FormatJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintf(out, "No results recorded for scenario %q\n", args[0])
		return nil
	}

	t := table.New().Headers("Step", "Runs", "Mean", "StdDev", "Pass rate")
	for _, s := range stats {
		t.Row(
			strconv.Itoa(s.StepNumber),
			strconv.Itoa(s.Count),
			fmt.Sprintf("%.3f", s.Mean),
			fmt.Sprintf("%.3f", s.StdDev),
			fmt.Sprintf("%.0f%%", s.PassRate*100),
		)
	}
	_, err = fmt.Fprintln(out, t.Render())
	return err
}
