package report

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/pkg/types"
)

type JSONReport struct {
	Version       string                  `json:"version"`
	Timestamp     string                  `json:"timestamp"`
	Results       []*types.ScenarioResult `json:"results"`
	Summary       Summary                 `json:"summary"`
	TotalDuration int64                   `json:"total_duration_ms"`
}

// Summary counts scenario verdicts across a run.
type Summary struct {
	Total     int     `json:"total"`
	Passed    int     `json:"passed"`
	Partial   int     `json:"partial_success"`
	Failed    int     `json:"failed"`
	Recovered int     `json:"recovered"`
	Cancelled int     `json:"cancelled"`
	MeanScore float64 `json:"mean_score"`
}

// Summarize computes verdict counts and the mean overall score.
func Summarize(results []*types.ScenarioResult) Summary {
	s := Summary{Total: len(results)}
	var scoreSum float64
	for _, r := range results {
		switch {
		case r.Passed:
			s.Passed++
		case r.PartialSuccess:
			s.Partial++
		default:
			s.Failed++
		}
		if r.Recovered {
			s.Recovered++
		}
		if r.Cancelled {
			s.Cancelled++
		}
		scoreSum += r.OverallScore
	}
	if s.Total > 0 {
		s.MeanScore = scoreSum / float64(s.Total)
	}
	return s
}

// GenerateJSONReport generates a structured JSON report from scenario results.
func GenerateJSONReport(results []*types.ScenarioResult) ([]byte, error) {
	if results == nil {
		results = []*types.ScenarioResult{}
	}
	var total int64
	for _, r := range results {
		total += r.DurationMS
	}

	report := JSONReport{
		Version:       "1.0",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Results:       results,
		Summary:       Summarize(results),
		TotalDuration: total,
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return output, nil
}
