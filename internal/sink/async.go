package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// Async delivers results to an inner Sink on a background goroutine.
// Publish never blocks on and never reports the inner sink's outcome;
// delivery failures are logged.
type Async struct {
	inner   Sink
	logger  *slog.Logger
	timeout time.Duration
	queue   chan *types.ScenarioResult
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a dispatcher with room for buffer undelivered results.
// timeout bounds each delivery; zero means no bound.
func NewAsync(inner Sink, logger *slog.Logger, buffer int, timeout time.Duration) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		inner:   inner,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan *types.ScenarioResult, buffer),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Publish enqueues res. When the queue is full or the dispatcher is closed
// the result is dropped and a warning logged.
func (a *Async) Publish(_ context.Context, res *types.ScenarioResult) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("result sink closed, dropping result", "execution_id", res.ExecutionID)
		return nil
	}
	select {
	case a.queue <- res:
	default:
		a.logger.Warn("result sink queue full, dropping result",
			"execution_id", res.ExecutionID, "scenario_id", res.ScenarioID)
	}
	return nil
}

func (a *Async) loop() {
	defer close(a.done)
	for res := range a.queue {
		a.deliver(res)
	}
}

func (a *Async) deliver(res *types.ScenarioResult) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("result sink panicked", "execution_id", res.ExecutionID, "panic", r)
		}
	}()
	if err := a.inner.Publish(ctx, res); err != nil {
		a.logger.Error("result sink delivery failed",
			"execution_id", res.ExecutionID, "scenario_id", res.ScenarioID, "err", err)
	}
}

// Close stops accepting results and waits for queued ones to be delivered.
// It is safe to call more than once.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
