package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/attest-ai/voxcheck/pkg/types"
)

var (
	colorPass    = lipgloss.Color("42")
	colorPartial = lipgloss.Color("220")
	colorFail    = lipgloss.Color("196")
	colorMuted   = lipgloss.Color("244")
	colorHeader  = lipgloss.Color("33")
)

// PrettyOptions configures terminal rendering.
type PrettyOptions struct {
	NoColor bool
}

// RenderPretty writes a human-readable, optionally colored summary of results.
func RenderPretty(w io.Writer, results []*types.ScenarioResult, opts PrettyOptions) error {
	var blocks []string
	for _, res := range results {
		blocks = append(blocks, renderScenario(res, opts.NoColor))
	}

	s := Summarize(results)
	summary := fmt.Sprintf("%d scenarios: %d passed, %d partial, %d failed | mean score %.3f",
		s.Total, s.Passed, s.Partial, s.Failed, s.MeanScore)
	blocks = append(blocks, stylize(summary, opts.NoColor, colorHeader))

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, blocks...))
	return err
}

func renderScenario(res *types.ScenarioResult, noColor bool) string {
	verdict, color := "FAIL", colorFail
	switch {
	case res.Passed:
		verdict, color = "PASS", colorPass
	case res.PartialSuccess:
		verdict, color = "PARTIAL", colorPartial
	}

	name := res.ScenarioID
	if name == "" {
		name = "scenario"
	}
	header := stylize(verdict, noColor, color) + " " + name +
		fmt.Sprintf(" (%d/%d steps, score %.3f)", res.SuccessfulSteps, res.TotalSteps, res.OverallScore)
	if res.Recovered {
		header += " " + stylize("recovered", noColor, colorPartial)
	}
	if res.Cancelled {
		header += " " + stylize("cancelled", noColor, colorMuted)
	}

	lines := []string{header}
	for _, sr := range res.StepResults {
		mark, c := "✓", colorPass
		if !sr.Passed {
			mark, c = "✗", colorFail
		}
		line := fmt.Sprintf("  %s step %d  %.3f", stylize(mark, noColor, c), sr.StepNumber, sr.Score)
		if sr.FollowUpAction != "" {
			line += stylize("  → "+sr.FollowUpAction, noColor, colorMuted)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
