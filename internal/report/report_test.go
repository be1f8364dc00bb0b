package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/pkg/types"
)

func sampleResults() []*types.ScenarioResult {
	return []*types.ScenarioResult{
		{
			ScenarioID: "greeting", ExecutionID: "e1", TotalSteps: 2, SuccessfulSteps: 2, Passed: true,
			OverallScore: 1, DurationMS: 12,
			StepResults: []types.StepResult{
				{StepNumber: 1, Passed: true, Score: 1},
				{StepNumber: 2, Passed: true, Score: 1, FollowUpAction: "await_confirmation"},
			},
		},
		{
			ScenarioID: "booking", TotalSteps: 3, SuccessfulSteps: 2, PartialSuccess: true, Recovered: true,
			OverallScore: 0.6, DurationMS: 8,
			StepResults: []types.StepResult{
				{StepNumber: 1, Passed: false, Score: 0.1},
				{StepNumber: 2, Passed: true, Score: 0.9},
				{StepNumber: 3, Passed: true, Score: 0.8},
			},
		},
		{
			ScenarioID: "refund", TotalSteps: 1, OverallScore: 0.2, Cancelled: true,
			StepResults: []types.StepResult{{StepNumber: 1, Score: 0.2}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	if s.Total != 3 || s.Passed != 1 || s.Partial != 1 || s.Failed != 1 || s.Recovered != 1 || s.Cancelled != 1 {
		t.Errorf("summary = %+v", s)
	}
	if diff := s.MeanScore - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("mean score = %f, want 0.6", s.MeanScore)
	}
	if empty := Summarize(nil); empty.Total != 0 || empty.MeanScore != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestGenerateJSONReport(t *testing.T) {
	data, err := GenerateJSONReport(sampleResults())
	if err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}

	var rep JSONReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.Version != "1.0" || rep.Summary.Total != 3 || len(rep.Results) != 3 {
		t.Errorf("report = %+v", rep)
	}
	if rep.TotalDuration != 20 {
		t.Errorf("total duration = %d, want 20", rep.TotalDuration)
	}
	if _, err := time.Parse(time.RFC3339, rep.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", rep.Timestamp, err)
	}
}

func TestGenerateJSONReport_EmptyResultsIsArray(t *testing.T) {
	data, err := GenerateJSONReport(nil)
	if err != nil {
		t.Fatalf("GenerateJSONReport: %v", err)
	}
	if !bytes.Contains(data, []byte(`"results": []`)) {
		t.Errorf("expected empty results array, got %s", data)
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var buf bytes.Buffer
	err := GenerateMarkdown(&buf, &MarkdownReport{
		RunAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Results: sampleResults(),
	})
	if err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"## Voxcheck Scenario Report",
		"**Run at:** 2026-01-02T03:04:05Z",
		"3 total: 1 passed, 1 partial, 1 failed (1 recovered)",
		":white_check_mark: `greeting`",
		":warning: `booking`",
		"Execution `e1`",
		"| 2 | :white_check_mark: pass | 1.000 | `await_confirmation` |",
		"| 1 | :x: fail | 0.100 |  |",
		"Recovered.",
		"Cancelled.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q\n%s", want, out)
		}
	}
}

func TestGenerateMarkdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := GenerateMarkdown(&buf, &MarkdownReport{Title: "Nightly"}); err != nil {
		t.Fatalf("GenerateMarkdown: %v", err)
	}
	if !strings.Contains(buf.String(), "## Nightly") || !strings.Contains(buf.String(), "_No scenarios executed._") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderPretty_NoColor(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPretty(&buf, sampleResults(), PrettyOptions{NoColor: true}); err != nil {
		t.Fatalf("RenderPretty: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"PASS greeting (2/2 steps, score 1.000)",
		"PARTIAL booking (2/3 steps, score 0.600) recovered",
		"FAIL refund",
		"cancelled",
		"✗ step 1  0.100",
		"→ await_confirmation",
		"3 scenarios: 1 passed, 1 partial, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("pretty output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("NoColor output contains ANSI escapes")
	}
}
