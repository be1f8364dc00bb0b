package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/internal/runner"
	"github.com/attest-ai/voxcheck/internal/sink"
	"github.com/attest-ai/voxcheck/pkg/types"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [execution-id...]",
		Short: "Execute stored executions and persist their results",
		RunE:  runExec,
	}
	cmd.Flags().Bool("pending", false, "execute every pending execution in the store")
	cmd.Flags().Int("limit", 100, "maximum pending executions to pick up")
	cmd.Flags().String("results-log", "", "append each result as a JSON line to this file")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ids := append([]string{}, args...)
	if pending, _ := cmd.Flags().GetBool("pending"); pending {
		limit, _ := cmd.Flags().GetInt("limit")
		more, err := st.PendingExecutions(ctx, limit)
		if err != nil {
			return err
		}
		ids = append(ids, more...)
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No executions to run")
		return nil
	}

	sinks := sink.Multi{sink.Func(st.SaveResult)}
	if path, _ := cmd.Flags().GetString("results-log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open results log: %w", err)
		}
		defer f.Close()
		sinks = append(sinks, sink.NewWriter(f))
	}
	async := sink.NewAsync(sinks, logger, cfg.Runner.SinkBuffer, cfg.Runner.SinkTimeout)
	defer async.Close()

	eng := newEngine(ctx, cfg, logger)
	defer eng.Close()

	guard := resilience.NewGuard(logger, cfg.Store.FetchTimeout)
	svc := runner.NewService(st, eng.executor, async, guard, logger)
	outcomes := runner.NewPool(svc, cfg.Runner.Workers, logger).Run(ctx, ids)

	var results []*types.ScenarioResult
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "execution %s: %v\n", o.ExecutionID, o.Err)
			continue
		}
		results = append(results, o.Result)
	}

	if err := writeReport(cmd.OutOrStdout(), cfg.Format, results); err != nil {
		return err
	}
	if failed > 0 || anyFailed(results) {
		return errScenariosFailed
	}
	return nil
}
