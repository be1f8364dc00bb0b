package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/cache"
	"github.com/attest-ai/voxcheck/internal/config"
	"github.com/attest-ai/voxcheck/internal/report"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/internal/similarity"
	"github.com/attest-ai/voxcheck/internal/validate"
	"github.com/attest-ai/voxcheck/pkg/types"
)

// errScenariosFailed makes the process exit non-zero without printing an
// extra error line; the report already shows the failures.
var errScenariosFailed = errors.New("one or more scenarios failed")

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	required := path != ""
	if path == "" {
		path = config.DefaultFile
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return config.Config{}, err
	}
	config.ApplyEnv(&cfg, nil)

	flags, err := gatherFlags(cmd)
	if err != nil {
		return config.Config{}, err
	}
	config.ApplyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// engine bundles the scorer stack shared by every command that validates steps.
type engine struct {
	scorer   *similarity.Scorer
	executor *scenario.Executor
	cache    *cache.EmbeddingCache
}

func newEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) *engine {
	e := &engine{}
	if !cfg.Cache.Disabled {
		e.cache = openCache(cfg, logger)
	}

	e.scorer = similarity.NewScorer(ctx, similarity.NewBackend(cfg.Backend(), logger), similarity.Options{
		Logger:      logger,
		InitTimeout: cfg.Scoring.InitTimeout,
		Cache:       e.cache,
	})
	logger.Info("similarity backend ready", "model", e.scorer.Model(), "degraded", e.scorer.Degraded())

	v := validate.New(e.scorer,
		validate.WithDefaultThreshold(cfg.Scoring.DefaultThreshold),
		validate.WithLogger(logger),
	)
	e.executor = scenario.NewExecutor(v,
		scenario.WithAggregation(cfg.Aggregation()),
		scenario.WithStepTimeout(cfg.Scoring.StepTimeout),
		scenario.WithLogger(logger),
	)
	return e
}

// openCache opens the embedding cache. Failures are logged and disable caching.
func openCache(cfg config.Config, logger *slog.Logger) *cache.EmbeddingCache {
	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		logger.Warn("failed to create cache dir", "dir", cfg.Cache.Dir, "err", err)
		return nil
	}
	c, err := cache.NewEmbeddingCache(cfg.CachePath(), cfg.Cache.MaxMB)
	if err != nil {
		logger.Warn("failed to open embedding cache", "err", err)
		return nil
	}
	return c
}

func (e *engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func writeReport(w io.Writer, format string, results []*types.ScenarioResult) error {
	switch strings.ToLower(format) {
	case config.FormatJSON:
		data, err := report.GenerateJSONReport(results)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case config.FormatMarkdown:
		return report.GenerateMarkdown(w, &report.MarkdownReport{RunAt: time.Now(), Results: results})
	default:
		return report.RenderPretty(w, results, report.PrettyOptions{NoColor: os.Getenv("NO_COLOR") != ""})
	}
}

func anyFailed(results []*types.ScenarioResult) bool {
	for _, res := range results {
		if res == nil || !res.Passed {
			return true
		}
	}
	return false
}
