package server

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/pkg/types"
)

const (
	// EngineVersion is reported by initialize.
	EngineVersion   = "0.1.0"
	protocolVersion = 1

	maxStepsPerScenario = 10000
)

// Capability names advertised by initialize.
const (
	CapExecuteScenario    = "execute_scenario"
	CapValidateStep       = "validate_step"
	CapExecuteStored      = "execute_stored"
	CapSemanticSimilarity = "semantic_similarity"
)

// Engine executes scenarios and single steps.
type Engine interface {
	ExecuteScenario(ctx context.Context, sc *types.Scenario, responses []string) *types.ScenarioResult
	ValidateStep(ctx context.Context, step types.ScenarioStep, actual string) types.StepResult
}

// StoredRunner executes a persisted execution by ID.
type StoredRunner interface {
	ExecuteStored(ctx context.Context, executionID string) (*types.ScenarioResult, error)
}

// Deps are the collaborators the built-in handlers call.
type Deps struct {
	Engine Engine
	// Stored is optional; execute_stored is only registered when set.
	Stored StoredRunner
	// Degraded reports that similarity runs on the fallback backend.
	Degraded      bool
	MaxConcurrent int
}

// Capabilities lists what a server built from d supports.
func (d Deps) Capabilities() []string {
	caps := []string{CapExecuteScenario, CapValidateStep}
	if d.Stored != nil {
		caps = append(caps, CapExecuteStored)
	}
	if !d.Degraded {
		caps = append(caps, CapSemanticSimilarity)
	}
	return caps
}

// RegisterHandlers registers the built-in JSON-RPC handlers on s.
func RegisterHandlers(s *Server, d Deps) {
	s.RegisterHandler("initialize", handleInitialize(d))
	s.RegisterHandler("shutdown", handleShutdown)
	s.RegisterHandler("execute_scenario", handleExecuteScenario(d.Engine))
	s.RegisterHandler("validate_step", handleValidateStep(d.Engine))
	if d.Stored != nil {
		s.RegisterHandler("execute_stored", handleExecuteStored(d.Stored))
	}
}

func requireInitialized(session *Session, method string) *types.RPCError {
	if session.State() == StateInitialized {
		return nil
	}
	return types.NewRPCError(
		types.ErrSessionError,
		method+" called before initialize",
		types.ErrTypeSessionError,
		false,
		"call initialize first to establish a session",
	)
}

func handleInitialize(d Deps) Handler {
	caps := d.Capabilities()
	return func(_ context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateUninitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"initialize called on already-initialized session",
				types.ErrTypeSessionError,
				false,
				"initialize may only be called once per session",
			)
		}

		var p types.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"invalid initialize params",
				types.ErrTypeSessionError,
				false,
				err.Error(),
			)
		}

		if p.ProtocolVersion != protocolVersion {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("protocol version %d not supported; engine supports version %d", p.ProtocolVersion, protocolVersion),
				types.ErrTypeSessionError,
				false,
				"upgrade the engine binary or downgrade the client protocol_version",
			)
		}

		missing := []string{}
		for _, req := range p.RequiredCapabilities {
			if !slices.Contains(caps, req) {
				missing = append(missing, req)
			}
		}

		session.SetState(StateInitialized)

		maxConcurrent := d.MaxConcurrent
		if maxConcurrent < 1 {
			maxConcurrent = defaultMaxConcurrent
		}
		return &types.InitializeResult{
			EngineVersion:         EngineVersion,
			ProtocolVersion:       protocolVersion,
			Capabilities:          caps,
			Missing:               missing,
			Compatible:            len(missing) == 0,
			MaxConcurrentRequests: maxConcurrent,
			MaxStepsPerScenario:   maxStepsPerScenario,
		}, nil
	}
}

func handleShutdown(_ context.Context, session *Session, _ json.RawMessage) (any, *types.RPCError) {
	if session.State() != StateInitialized {
		return nil, types.NewRPCError(
			types.ErrSessionError,
			"shutdown called on uninitialized or already-shutting-down session",
			types.ErrTypeSessionError,
			false,
			"call initialize before shutdown",
		)
	}

	session.SetState(StateShuttingDown)
	completed, scenarios, steps := session.complete()

	return &types.ShutdownResult{
		SessionsCompleted: completed,
		ScenariosExecuted: scenarios,
		StepsValidated:    steps,
	}, nil
}

func handleExecuteScenario(engine Engine) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "execute_scenario"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.ExecuteScenarioParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrInvalidScenario,
				fmt.Sprintf("invalid execute_scenario params: %v", err),
				types.ErrTypeInvalidScenario,
				false,
				"check the request format matches the protocol",
			)
		}
		if n := len(p.Scenario.Steps); n > maxStepsPerScenario {
			return nil, types.NewRPCError(
				types.ErrInvalidScenario,
				fmt.Sprintf("scenario has %d steps; limit is %d", n, maxStepsPerScenario),
				types.ErrTypeInvalidScenario,
				false,
				"split the scenario",
			)
		}
		if err := scenario.Validate(&p.Scenario); err != nil {
			return nil, types.NewRPCError(
				types.ErrInvalidScenario,
				"invalid scenario",
				types.ErrTypeInvalidScenario,
				false,
				err.Error(),
			)
		}

		res := engine.ExecuteScenario(ctx, &p.Scenario, p.ActualResponses)
		session.RecordScenario(len(res.StepResults))
		return res, nil
	}
}

func handleValidateStep(engine Engine) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "validate_step"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.ValidateStepParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrInvalidStep,
				fmt.Sprintf("invalid validate_step params: %v", err),
				types.ErrTypeInvalidStep,
				false,
				"check the request format matches the protocol",
			)
		}
		if err := scenario.Validate(&types.Scenario{Steps: []types.ScenarioStep{p.Step}}); err != nil {
			return nil, types.NewRPCError(
				types.ErrInvalidStep,
				"invalid step",
				types.ErrTypeInvalidStep,
				false,
				err.Error(),
			)
		}

		res := engine.ValidateStep(ctx, p.Step, p.ActualResponse)
		session.RecordStep()
		return &res, nil
	}
}

func handleExecuteStored(runner StoredRunner) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session, "execute_stored"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.ExecuteStoredParams
		if err := json.Unmarshal(params, &p); err != nil || p.ExecutionID == "" {
			detail := "execution_id is required"
			if err != nil {
				detail = err.Error()
			}
			return nil, types.NewRPCError(
				types.ErrInvalidScenario,
				"invalid execute_stored params",
				types.ErrTypeInvalidScenario,
				false,
				detail,
			)
		}

		res, err := runner.ExecuteStored(ctx, p.ExecutionID)
		if err != nil {
			return nil, storedError(err)
		}
		session.RecordScenario(len(res.StepResults))
		return res, nil
	}
}

// storedError maps collaborator errors onto protocol errors.
func storedError(err error) *types.RPCError {
	switch {
	case resilience.IsNotFound(err):
		return types.NewRPCError(types.ErrNotFound, "not found", types.ErrTypeNotFound, false, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewRPCError(types.ErrTimeout, "dependency timed out", types.ErrTypeTimeout, true, err.Error())
	case resilience.IsDependencyFailure(err):
		return types.NewRPCError(types.ErrDependencyFailure, "dependency failure", types.ErrTypeDependencyFailure, true, err.Error())
	default:
		return types.NewRPCError(types.ErrEngineError, "execution failed", types.ErrTypeEngineError, false, err.Error())
	}
}
