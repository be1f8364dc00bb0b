package server

import "sync"

// State is the lifecycle state of a protocol session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session tracks protocol state and per-session counters.
type Session struct {
	mu                sync.Mutex
	state             State
	sessionsCompleted int
	scenariosExecuted int
	stepsValidated    int
}

// NewSession returns an uninitialized session.
func NewSession() *Session {
	return &Session{}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// RecordScenario counts one executed scenario and its validated steps.
func (s *Session) RecordScenario(steps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenariosExecuted++
	s.stepsValidated += steps
}

// RecordStep counts one standalone step validation.
func (s *Session) RecordStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepsValidated++
}

// complete marks the session finished and returns its counters.
func (s *Session) complete() (completed, scenarios, steps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsCompleted++
	return s.sessionsCompleted, s.scenariosExecuted, s.stepsValidated
}
