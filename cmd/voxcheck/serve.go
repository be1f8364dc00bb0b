package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/internal/runner"
	"github.com/attest-ai/voxcheck/internal/server"
	"github.com/attest-ai/voxcheck/internal/sink"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine as NDJSON JSON-RPC on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("max-concurrent", 1, "requests dispatched concurrently")
	cmd.Flags().Bool("stored", false, "enable execute_stored against the execution store")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := newEngine(ctx, cfg, logger)
	defer eng.Close()

	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
	deps := server.Deps{
		Engine:        eng.executor,
		Degraded:      eng.scorer.Degraded(),
		MaxConcurrent: maxConcurrent,
	}

	if stored, _ := cmd.Flags().GetBool("stored"); stored {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		async := sink.NewAsync(sink.Func(st.SaveResult), logger, cfg.Runner.SinkBuffer, cfg.Runner.SinkTimeout)
		defer async.Close()

		guard := resilience.NewGuard(logger, cfg.Store.FetchTimeout)
		deps.Stored = runner.NewService(st, eng.executor, async, guard, logger)
	}

	s := server.NewWithConcurrency(cmd.InOrStdin(), cmd.OutOrStdout(), logger, maxConcurrent)
	server.RegisterHandlers(s, deps)

	logger.Info("engine serving", "version", server.EngineVersion, "capabilities", deps.Capabilities())
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
