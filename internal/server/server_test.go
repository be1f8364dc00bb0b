package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/internal/embedding"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/internal/similarity"
	"github.com/attest-ai/voxcheck/internal/validate"
	"github.com/attest-ai/voxcheck/pkg/types"
)

func testEngine() *scenario.Executor {
	scorer := similarity.NewStaticScorer(embedding.NewHashEmbedder(), slog.New(slog.DiscardHandler))
	return scenario.NewExecutor(validate.New(scorer))
}

// newTestServer starts a server over in-memory pipes with the built-in handlers.
// It returns the request writer, a response reader and a channel receiving Run's result.
func newTestServer(t *testing.T, deps ...Deps) (io.WriteCloser, *bufio.Reader, <-chan error) {
	t.Helper()

	d := Deps{Engine: testEngine()}
	if len(deps) > 0 {
		d = deps[0]
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	s := New(inR, outW, slog.New(slog.DiscardHandler))
	RegisterHandlers(s, d)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
		outW.Close()
	}()

	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})
	return inW, bufio.NewReader(outR), done
}

func sendRequest(t *testing.T, w io.Writer, id int64, method string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	sendRaw(t, w, mustMarshal(t, types.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}))
}

func sendRaw(t *testing.T, w io.Writer, line []byte) {
	t.Helper()
	if _, err := w.Write(append(line, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readResponse(t *testing.T, r *bufio.Reader) *types.Response {
	t.Helper()

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		ch <- result{line, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read response: %v", res.err)
		}
		var resp types.Response
		if err := json.Unmarshal(res.line, &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", res.line, err)
		}
		return &resp
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func initializeParams() types.InitializeParams {
	return types.InitializeParams{
		ClientName:      "test",
		ClientVersion:   "0.0.1",
		ProtocolVersion: protocolVersion,
	}
}

func TestServer_ParseError(t *testing.T) {
	stdin, stdout, _ := newTestServer(t)

	sendRaw(t, stdin, []byte(`{not json`))
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", resp)
	}
}

func TestServer_InvalidRequest(t *testing.T) {
	stdin, stdout, _ := newTestServer(t)

	sendRaw(t, stdin, []byte(`{"jsonrpc":"1.0","id":3,"method":"initialize"}`))
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected invalid request, got %+v", resp)
	}
	if resp.ID != 3 {
		t.Errorf("ID = %d, want 3", resp.ID)
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	stdin, stdout, _ := newTestServer(t)

	sendRequest(t, stdin, 1, "evaluate_batch", map[string]any{})
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method not found, got %+v", resp)
	}
}

func TestServer_Initialize(t *testing.T) {
	stdin, stdout, _ := newTestServer(t)

	params := initializeParams()
	params.RequiredCapabilities = []string{CapExecuteScenario, CapExecuteStored}
	sendRequest(t, stdin, 1, "initialize", params)
	resp := readResponse(t, stdout)
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}

	var result types.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ProtocolVersion != protocolVersion {
		t.Errorf("ProtocolVersion = %d", result.ProtocolVersion)
	}
	if result.Compatible {
		t.Error("Compatible = true without execute_stored")
	}
	if len(result.Missing) != 1 || result.Missing[0] != CapExecuteStored {
		t.Errorf("Missing = %v, want [execute_stored]", result.Missing)
	}

	sendRequest(t, stdin, 2, "initialize", initializeParams())
	resp = readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != types.ErrSessionError {
		t.Fatalf("expected session error on second initialize, got %+v", resp)
	}
}

func TestServer_InitializeRejectsProtocolVersion(t *testing.T) {
	stdin, stdout, _ := newTestServer(t)

	params := initializeParams()
	params.ProtocolVersion = 99
	sendRequest(t, stdin, 1, "initialize", params)
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != types.ErrSessionError {
		t.Fatalf("expected session error, got %+v", resp)
	}
}

func TestServer_ShutdownStopsRun(t *testing.T) {
	stdin, stdout, done := newTestServer(t)

	sendRequest(t, stdin, 1, "initialize", initializeParams())
	readResponse(t, stdout)

	sendRequest(t, stdin, 2, "shutdown", nil)
	resp := readResponse(t, stdout)
	if resp.Error != nil {
		t.Fatalf("shutdown failed: %+v", resp.Error)
	}

	var result types.ShutdownResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.SessionsCompleted != 1 {
		t.Errorf("SessionsCompleted = %d, want 1", result.SessionsCompleted)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestServer_RunReturnsOnEOF(t *testing.T) {
	stdin, _, done := newTestServer(t)
	stdin.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return on EOF")
	}
}

func TestServer_RunStopsOnContextCancel(t *testing.T) {
	inR, _ := io.Pipe()
	s := New(inR, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return on cancel")
	}
}

func TestServer_HandlerPanicBecomesEngineError(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	s := New(inR, outW, slog.New(slog.DiscardHandler))
	s.RegisterHandler("boom", func(context.Context, *Session, json.RawMessage) (any, *types.RPCError) {
		panic("kaboom")
	})
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() { inW.Close(); outR.Close() })

	stdout := bufio.NewReader(outR)
	sendRequest(t, inW, 7, "boom", nil)
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Code != types.ErrEngineError {
		t.Fatalf("expected engine error, got %+v", resp)
	}
	if resp.ID != 7 {
		t.Errorf("ID = %d, want 7", resp.ID)
	}
}

func TestServer_ConcurrentDispatch(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	s := NewWithConcurrency(inR, outW, slog.New(slog.DiscardHandler), 4)
	RegisterHandlers(s, Deps{Engine: testEngine(), MaxConcurrent: 4})
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() { inW.Close(); outR.Close() })
	stdout := bufio.NewReader(outR)

	sendRequest(t, inW, 1, "initialize", initializeParams())
	readResponse(t, stdout)

	const n = 8
	params := mustMarshal(t, types.ValidateStepParams{
		Step:           types.ScenarioStep{StepNumber: 1, ExpectedResponse: "hello there"},
		ActualResponse: "hello there",
	})
	var lines [][]byte
	for i := 0; i < n; i++ {
		req := types.Request{JSONRPC: "2.0", ID: int64(100 + i), Method: "validate_step", Params: params}
		lines = append(lines, append(mustMarshal(t, req), '\n'))
	}
	go func() {
		for _, line := range lines {
			if _, err := inW.Write(line); err != nil {
				return
			}
		}
	}()

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		resp := readResponse(t, stdout)
		if resp.Error != nil {
			t.Fatalf("validate_step failed: %+v", resp.Error)
		}
		seen[resp.ID] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct responses, want %d", len(seen), n)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateShuttingDown:  "shutting_down",
		State(42):          "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
