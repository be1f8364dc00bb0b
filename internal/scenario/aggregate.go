package scenario

import (
	"fmt"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// Aggregation combines step scores into a scenario score.
type Aggregation string

const (
	// AggregateMean is the arithmetic mean of all step scores.
	AggregateMean Aggregation = "mean"
	// AggregateMin is the lowest step score.
	AggregateMin Aggregation = "min"
)

// ParseAggregation validates an aggregation name. Empty selects the mean.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(s) {
	case "", AggregateMean:
		return AggregateMean, nil
	case AggregateMin:
		return AggregateMin, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q (want mean or min)", s)
	}
}

// Apply returns the aggregated score, 0.0 for no results.
func (a Aggregation) Apply(results []types.StepResult) float64 {
	if len(results) == 0 {
		return 0
	}
	switch a {
	case AggregateMin:
		lowest := results[0].Score
		for _, r := range results[1:] {
			lowest = min(lowest, r.Score)
		}
		return lowest
	default:
		var sum float64
		for _, r := range results {
			sum += r.Score
		}
		return sum / float64(len(results))
	}
}
