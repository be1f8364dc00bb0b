// Package validate scores one conversation turn against its expected response.
package validate

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// Scorer returns a similarity in [0, 1] for two strings.
type Scorer interface {
	Score(ctx context.Context, a, b string) float64
}

// Validator applies a Scorer and a pass threshold to a single step.
type Validator struct {
	scorer           Scorer
	defaultThreshold float64
	logger           *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithDefaultThreshold sets the threshold used by steps that do not define one.
func WithDefaultThreshold(th float64) Option {
	return func(v *Validator) { v.defaultThreshold = th }
}

// WithLogger sets the validator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator backed by scorer.
func New(scorer Scorer, opts ...Option) *Validator {
	v := &Validator{
		scorer:           scorer,
		defaultThreshold: types.DefaultToleranceThreshold,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// DefaultThreshold returns the threshold applied to steps without their own.
func (v *Validator) DefaultThreshold() float64 { return v.defaultThreshold }

// Validate scores actual against step.ExpectedResponse. It never fails: a
// panicking or misbehaving scorer yields a failed result with score 0.
// The step's follow-up action is always echoed.
func (v *Validator) Validate(ctx context.Context, step types.ScenarioStep, actual string) (res types.StepResult) {
	start := time.Now()
	res = types.StepResult{
		StepNumber:     step.StepNumber,
		FollowUpAction: step.FollowUpAction,
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("step validation panicked", "step", step.StepNumber, "panic", r)
			res.Passed = false
			res.Score = 0
		}
		res.DurationMS = time.Since(start).Milliseconds()
	}()

	score := v.scorer.Score(ctx, step.ExpectedResponse, actual)
	if math.IsNaN(score) || score < 0 || score > 1 {
		v.logger.Warn("scorer returned out-of-range score", "step", step.StepNumber, "score", score)
		score = 0
	}

	res.Score = score
	res.Passed = score >= step.Threshold(v.defaultThreshold)
	return res
}

// Failed returns the result for a step that was never reached.
func Failed(step types.ScenarioStep) types.StepResult {
	return types.StepResult{
		StepNumber:     step.StepNumber,
		FollowUpAction: step.FollowUpAction,
	}
}
