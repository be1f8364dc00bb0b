package types

import "github.com/segmentio/encoding/json"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	ClientName           string   `json:"client_name"`
	ClientVersion        string   `json:"client_version"`
	ProtocolVersion      int      `json:"protocol_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	EngineVersion         string   `json:"engine_version"`
	ProtocolVersion       int      `json:"protocol_version"`
	Capabilities          []string `json:"capabilities"`
	Missing               []string `json:"missing"`
	Compatible            bool     `json:"compatible"`
	MaxConcurrentRequests int      `json:"max_concurrent_requests"`
	MaxStepsPerScenario   int      `json:"max_steps_per_scenario"`
}

// ExecuteScenarioParams holds parameters for the execute_scenario method.
type ExecuteScenarioParams struct {
	Scenario        Scenario `json:"scenario"`
	ActualResponses []string `json:"actual_responses"`
}

// ValidateStepParams holds parameters for the validate_step method.
type ValidateStepParams struct {
	Step           ScenarioStep `json:"step"`
	ActualResponse string       `json:"actual_response"`
}

// ExecuteStoredParams holds parameters for the execute_stored method.
type ExecuteStoredParams struct {
	ExecutionID string `json:"execution_id"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	SessionsCompleted  int `json:"sessions_completed"`
	ScenariosExecuted  int `json:"scenarios_executed"`
	StepsValidated     int `json:"steps_validated"`
}
