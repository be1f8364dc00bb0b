// Package server exposes the scenario engine as NDJSON JSON-RPC 2.0 over a
// pair of streams, typically stdin and stdout.
package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// Handler is the function signature for JSON-RPC method handlers.
type Handler func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError)

const (
	defaultMaxConcurrent = 1

	// maxLineBytes bounds a single request line.
	maxLineBytes = 10 * 1024 * 1024
)

// Server reads NDJSON requests from an io.Reader and writes NDJSON responses to an io.Writer.
type Server struct {
	reader        *bufio.Scanner
	writer        *bufio.Writer
	mu            sync.Mutex // protects writer
	session       *Session
	handlers      map[string]Handler
	logger        *slog.Logger
	maxConcurrent int
	semaphore     chan struct{}
	inflight      sync.WaitGroup
}

// New creates a sequential Server reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	return NewWithConcurrency(in, out, logger, defaultMaxConcurrent)
}

// NewWithConcurrency creates a Server that dispatches up to maxConcurrent
// requests at once. Values below 2 process requests sequentially.
func NewWithConcurrency(in io.Reader, out io.Writer, logger *slog.Logger, maxConcurrent int) *Server {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &Server{
		reader:        scanner,
		writer:        bufio.NewWriter(out),
		session:       NewSession(),
		handlers:      make(map[string]Handler),
		logger:        logger,
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
	}
}

// RegisterHandler registers a handler for the given JSON-RPC method name.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlers[method] = h
}

// Session returns the server's session.
func (s *Server) Session() *Session { return s.session }

// Run reads NDJSON lines, dispatches them and writes responses until the
// input is closed, a shutdown request is handled or ctx is canceled.
// In-flight requests are finished before Run returns.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for s.reader.Scan() {
			line := make([]byte, len(s.reader.Bytes()))
			copy(line, s.reader.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := s.reader.Err(); err != nil {
			scanErr <- err
		}
	}()
	defer s.inflight.Wait()

	dispatchOne := func(line []byte) {
		s.semaphore <- struct{}{}
		handle := func() {
			defer func() { <-s.semaphore }()
			if resp := s.dispatch(ctx, line); resp != nil {
				s.writeResponse(resp)
			}
		}
		if s.maxConcurrent > 1 {
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				handle()
			}()
		} else {
			handle()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			dispatchOne(line)
			if s.session.State() == StateShuttingDown {
				return nil
			}
		}
	}
}

// protocolError builds a non-retryable JSON-RPC level error response.
func protocolError(id int64, code int, message, errType, detail string) *types.Response {
	return types.NewErrorResponse(id, &types.RPCError{
		Code:    code,
		Message: message,
		Data:    &types.ErrorData{ErrorType: errType, Detail: detail},
	})
}

// dispatch decodes one request line and runs its handler. A nil response
// is never returned; every request gets an answer.
func (s *Server) dispatch(ctx context.Context, line []byte) (resp *types.Response) {
	var req types.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Error("undecodable request line", "bytes", len(line), "err", err)
		return protocolError(0, -32700, "parse error", "PARSE_ERROR", err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.logger.Error("malformed request envelope", "id", req.ID, "method", req.Method)
		return protocolError(req.ID, -32600, "invalid request", "INVALID_REQUEST",
			`jsonrpc must be "2.0" and method must be non-empty`)
	}
	h, ok := s.handlers[req.Method]
	if !ok {
		s.logger.Warn("unknown method", "method", req.Method)
		return protocolError(req.ID, -32601, "method not found", "METHOD_NOT_FOUND",
			"unknown method: "+req.Method)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered", "method", req.Method, "panic", r)
			resp = types.NewErrorResponse(req.ID, types.NewRPCError(
				types.ErrEngineError, "internal engine error", types.ErrTypeEngineError, false, "handler panicked"))
		}
	}()

	result, rpcErr := h(ctx, s.session, req.Params)
	if rpcErr != nil {
		return types.NewErrorResponse(req.ID, rpcErr)
	}
	out, err := types.NewSuccessResponse(req.ID, result)
	if err != nil {
		s.logger.Error("result not encodable", "method", req.Method, "err", err)
		return types.NewErrorResponse(req.ID, types.NewRPCError(
			types.ErrEngineError, "failed to marshal result", types.ErrTypeEngineError, false, err.Error()))
	}
	return out
}

// writeResponse serializes a Response as compact JSON followed by a newline.
func (s *Server) writeResponse(resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_ = s.writer.WriteByte('\n')
	_ = s.writer.Flush()
}
