// Package runner executes stored scenario runs against the persistence
// collaborator and hands their results to the result sink.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/internal/sink"
	"github.com/attest-ai/voxcheck/internal/store"
	"github.com/attest-ai/voxcheck/pkg/types"
)

// Fetcher reads execution and scenario records. A missing record is
// reported with an error matching resilience.ErrNotFound.
type Fetcher interface {
	FetchExecution(ctx context.Context, id string) (*store.ExecutionRecord, error)
	FetchExpectedOutcome(ctx context.Context, scenarioID string) (*store.OutcomeRecord, error)
}

// Executor runs a scenario against captured responses.
type Executor interface {
	ExecuteScenario(ctx context.Context, sc *types.Scenario, responses []string) *types.ScenarioResult
}

// Service executes stored executions end to end.
type Service struct {
	fetcher  Fetcher
	executor Executor
	sink     sink.Sink
	guard    *resilience.Guard
	logger   *slog.Logger
}

// NewService creates a Service. sink may be nil; guard nil uses a guard
// without timeout on logger.
func NewService(f Fetcher, e Executor, s sink.Sink, guard *resilience.Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = resilience.NewGuard(logger, 0)
	}
	return &Service{fetcher: f, executor: e, sink: s, guard: guard, logger: logger}
}

// ExecuteStored fetches an execution and its scenario, executes it and
// publishes the result.
//
// A missing execution or scenario is returned as *resilience.NotFoundError;
// a fetch failure as *resilience.DependencyFailure. Sink failures never fail
// the call.
func (s *Service) ExecuteStored(ctx context.Context, executionID string) (*types.ScenarioResult, error) {
	exec, err := resilience.Do(ctx, s.guard, resilience.Call{
		Op:   "store.fetch_execution",
		Kind: "execution",
		ID:   executionID,
	}, func(ctx context.Context) (*store.ExecutionRecord, error) {
		return s.fetcher.FetchExecution(ctx, executionID)
	})
	if err != nil {
		return nil, err
	}

	outcome, err := resilience.Do(ctx, s.guard, resilience.Call{
		Op:    "store.fetch_expected_outcome",
		Kind:  "scenario",
		ID:    exec.ScenarioID,
		Attrs: map[string]string{"execution_id": executionID},
	}, func(ctx context.Context) (*store.OutcomeRecord, error) {
		return s.fetcher.FetchExpectedOutcome(ctx, exec.ScenarioID)
	})
	if err != nil {
		return nil, err
	}

	sc := outcome.Scenario
	if sc.ID == "" {
		sc.ID = exec.ScenarioID
	}
	res := s.executor.ExecuteScenario(ctx, &sc, exec.Responses)
	res.ExecutionID = executionID

	s.publish(ctx, res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, res *types.ScenarioResult) {
	if s.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("result sink panicked", "execution_id", res.ExecutionID, "panic", r)
		}
	}()
	if err := s.sink.Publish(context.WithoutCancel(ctx), res); err != nil {
		s.logger.Error("result sink failed", "execution_id", res.ExecutionID, "err", fmt.Errorf("runner: publish: %w", err))
	}
}
