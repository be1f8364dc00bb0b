// Package scenario executes multi-turn conversation scenarios and aggregates
// per-step outcomes into a scenario verdict.
package scenario

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/attest-ai/voxcheck/internal/validate"
	"github.com/attest-ai/voxcheck/pkg/types"
)

// StepValidator validates one step against the captured response.
type StepValidator interface {
	Validate(ctx context.Context, step types.ScenarioStep, actual string) types.StepResult
}

// State is the lifecycle state of a single scenario run.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StepHook observes each StepResult as it is recorded.
type StepHook func(res types.StepResult)

// Executor drives the steps of a scenario through a StepValidator.
// It holds no per-run state and is safe for concurrent use.
type Executor struct {
	validator   StepValidator
	aggregation Aggregation
	stepTimeout time.Duration
	hook        StepHook
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithAggregation selects how step scores combine into the overall score.
func WithAggregation(a Aggregation) Option {
	return func(e *Executor) { e.aggregation = a }
}

// WithStepTimeout bounds the validation of each step.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithStepHook registers a hook called after every recorded step.
func WithStepHook(h StepHook) Option {
	return func(e *Executor) { e.hook = h }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor.
func NewExecutor(v StepValidator, opts ...Option) *Executor {
	e := &Executor{
		validator:   v,
		aggregation: AggregateMean,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the mutable state of one execution. It is confined to the
// goroutine calling ExecuteScenario.
type run struct {
	state           State
	results         []types.StepResult
	successful      int
	pendingRecovery bool
	recovered       bool
	cancelled       bool
}

func (r *run) record(step types.ScenarioStep, res types.StepResult) {
	r.results = append(r.results, res)
	if res.Passed {
		r.successful++
		if r.pendingRecovery {
			r.recovered = true
		}
		return
	}
	if step.CanRecover {
		r.pendingRecovery = true
	}
}

// ExecuteScenario validates responses[i] against the i-th step in
// step_number order and returns the scenario verdict.
//
// Steps without a response are recorded as failed without invoking the
// validator. Cancellation of ctx is observed between steps only: a running
// step completes, and every step not yet started is recorded as failed.
func (e *Executor) ExecuteScenario(ctx context.Context, sc *types.Scenario, responses []string) *types.ScenarioResult {
	start := time.Now()
	if sc == nil {
		sc = &types.Scenario{}
	}

	steps := slices.Clone(sc.Steps)
	slices.SortStableFunc(steps, func(a, b types.ScenarioStep) int {
		return cmp.Compare(a.StepNumber, b.StepNumber)
	})

	r := &run{state: StateNotStarted, results: make([]types.StepResult, 0, len(steps))}
	log := e.logger.With("scenario_id", sc.ID)
	r.state = StateRunning
	log.Debug("scenario execution started", "state", r.state, "steps", len(steps), "responses", len(responses))

	for i, step := range steps {
		if !r.cancelled && ctx.Err() != nil {
			r.cancelled = true
			log.Info("scenario execution cancelled", "completed_steps", i, "err", ctx.Err())
		}

		var res types.StepResult
		switch {
		case r.cancelled:
			res = validate.Failed(step)
		case i >= len(responses):
			log.Debug("no response captured for step", "step", step.StepNumber)
			res = validate.Failed(step)
		default:
			res = e.validateStep(ctx, step, responses[i])
		}

		r.record(step, res)
		if e.hook != nil {
			e.hook(res)
		}
		log.Debug("step recorded", "step", res.StepNumber, "passed", res.Passed, "score", res.Score)
	}

	total := len(steps)
	result := &types.ScenarioResult{
		ScenarioID:      sc.ID,
		TotalSteps:      total,
		SuccessfulSteps: r.successful,
		StepResults:     r.results,
		OverallScore:    e.aggregation.Apply(r.results),
		Passed:          r.successful == total,
		PartialSuccess:  sc.AllowPartialSuccess && r.successful > 0 && r.successful < total,
		Recovered:       r.recovered,
		Cancelled:       r.cancelled,
		DurationMS:      time.Since(start).Milliseconds(),
	}
	r.state = StateCompleted

	log.Info("scenario execution completed",
		"state", r.state,
		"passed", result.Passed,
		"successful_steps", result.SuccessfulSteps,
		"total_steps", result.TotalSteps,
		"overall_score", result.OverallScore,
		"recovered", result.Recovered,
	)
	return result
}

// ValidateStep validates a single step outside of a scenario.
func (e *Executor) ValidateStep(ctx context.Context, step types.ScenarioStep, actual string) types.StepResult {
	return e.validateStep(ctx, step, actual)
}

// validateStep detaches the step from caller cancellation so a step in
// progress always runs to completion, bounded by the step timeout.
func (e *Executor) validateStep(ctx context.Context, step types.ScenarioStep, actual string) types.StepResult {
	stepCtx := context.WithoutCancel(ctx)
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, e.stepTimeout)
		defer cancel()
	}
	return e.validator.Validate(stepCtx, step, actual)
}
