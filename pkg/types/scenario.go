package types

// DefaultToleranceThreshold is the pass threshold applied to steps that do not set one.
const DefaultToleranceThreshold = 0.7

// ScenarioStep is one turn in a scripted conversation.
type ScenarioStep struct {
	StepNumber         int      `json:"step_number" yaml:"step_number"`
	UserUtterance      string   `json:"user_utterance,omitempty" yaml:"user_utterance,omitempty"`
	ExpectedResponse   string   `json:"expected_response" yaml:"expected_response"`
	ToleranceThreshold *float64 `json:"tolerance_threshold,omitempty" yaml:"tolerance_threshold,omitempty"`
	FollowUpAction     string   `json:"follow_up_action,omitempty" yaml:"follow_up_action,omitempty"`
	CanRecover         bool     `json:"can_recover,omitempty" yaml:"can_recover,omitempty"`
}

// Threshold returns the step's tolerance threshold, or def when the step leaves it unset.
func (s *ScenarioStep) Threshold(def float64) float64 {
	if s.ToleranceThreshold != nil {
		return *s.ToleranceThreshold
	}
	return def
}

// Scenario is an ordered, read-only collection of steps.
type Scenario struct {
	ID                  string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name                string         `json:"name,omitempty" yaml:"name,omitempty"`
	Steps               []ScenarioStep `json:"steps" yaml:"steps"`
	AllowPartialSuccess bool           `json:"allow_partial_success,omitempty" yaml:"allow_partial_success,omitempty"`
}

// StepResult is the outcome of validating a single step.
type StepResult struct {
	StepNumber     int     `json:"step_number"`
	Passed         bool    `json:"passed"`
	Score          float64 `json:"score"`
	DurationMS     int64   `json:"duration_ms"`
	FollowUpAction string  `json:"follow_up_action,omitempty"`
}

// ScenarioResult is the immutable outcome of executing a scenario.
type ScenarioResult struct {
	ScenarioID      string       `json:"scenario_id,omitempty"`
	ExecutionID     string       `json:"execution_id,omitempty"`
	TotalSteps      int          `json:"total_steps"`
	SuccessfulSteps int          `json:"successful_steps"`
	StepResults     []StepResult `json:"step_results"`
	OverallScore    float64      `json:"overall_score"`
	Passed          bool         `json:"passed"`
	PartialSuccess  bool         `json:"partial_success"`
	Recovered       bool         `json:"recovered"`
	Cancelled       bool         `json:"cancelled,omitempty"`
	DurationMS      int64        `json:"duration_ms"`
}
