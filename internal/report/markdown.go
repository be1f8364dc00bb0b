package report

import (
	"fmt"
	"io"
	"time"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// MarkdownReport holds data for a Markdown PR comment report.
type MarkdownReport struct {
	Title   string
	RunAt   time.Time
	Results []*types.ScenarioResult
}

// GenerateMarkdown writes a Markdown-formatted report to w.
func GenerateMarkdown(w io.Writer, r *MarkdownReport) error {
	title := r.Title
	if title == "" {
		title = "Voxcheck Scenario Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if !r.RunAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", r.RunAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	if len(r.Results) == 0 {
		_, err := fmt.Fprintln(w, "_No scenarios executed._")
		return err
	}

	s := Summarize(r.Results)
	if _, err := fmt.Fprintf(w, "**Scenarios:** %d total: %d passed, %d partial, %d failed (%d recovered)\n\n",
		s.Total, s.Passed, s.Partial, s.Failed, s.Recovered); err != nil {
		return err
	}

	for _, res := range r.Results {
		if err := writeScenario(w, res); err != nil {
			return err
		}
	}
	return nil
}

func writeScenario(w io.Writer, res *types.ScenarioResult) error {
	name := res.ScenarioID
	if name == "" {
		name = "scenario"
	}
	if _, err := fmt.Fprintf(w, "### %s `%s`\n\n", verdictIcon(res), name); err != nil {
		return err
	}
	if res.ExecutionID != "" {
		if _, err := fmt.Fprintf(w, "Execution `%s`. ", res.ExecutionID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%d/%d steps passed, overall score %.3f, %dms.%s\n\n",
		res.SuccessfulSteps, res.TotalSteps, res.OverallScore, res.DurationMS, flags(res)); err != nil {
		return err
	}

	if len(res.StepResults) == 0 {
		_, err := fmt.Fprint(w, "_No steps._\n\n")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Step | Status | Score | Follow-up |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|------|--------|-------|-----------|"); err != nil {
		return err
	}
	for _, sr := range res.StepResults {
		status := ":white_check_mark: pass"
		if !sr.Passed {
			status = ":x: fail"
		}
		follow := sr.FollowUpAction
		if follow != "" {
			follow = "`" + follow + "`"
		}
		if _, err := fmt.Fprintf(w, "| %d | %s | %.3f | %s |\n", sr.StepNumber, status, sr.Score, follow); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func flags(res *types.ScenarioResult) string {
	var out string
	if res.Recovered {
		out += " Recovered."
	}
	if res.Cancelled {
		out += " Cancelled."
	}
	return out
}

func verdictIcon(res *types.ScenarioResult) string {
	switch {
	case res.Passed:
		return ":white_check_mark:"
	case res.PartialSuccess:
		return ":warning:"
	default:
		return ":x:"
	}
}
