package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/attest-ai/voxcheck/pkg/types"
)

var errPanicked = errors.New("runner: execution panicked")

// Outcome is the result of one stored execution run by a Pool.
type Outcome struct {
	ExecutionID string
	Result      *types.ScenarioResult
	Err         error
}

// Pool runs stored executions concurrently with at most workers in flight.
// Executions share no mutable state; a failing execution does not affect
// its siblings.
type Pool struct {
	svc       *Service
	semaphore chan struct{}
	logger    *slog.Logger
}

// NewPool creates a Pool. workers < 1 runs one execution at a time.
func NewPool(svc *Service, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{svc: svc, semaphore: make(chan struct{}, workers), logger: logger}
}

// Run executes every id and returns outcomes in input order. Executions not
// yet started when ctx is cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, ids []string) []Outcome {
	out := make([]Outcome, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		out[i].ExecutionID = id
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		select {
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			continue
		case p.semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-p.semaphore }()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("execution panicked", "execution_id", id, "panic", r)
					out[i].Err = errPanicked
				}
			}()
			out[i].Result, out[i].Err = p.svc.ExecuteStored(ctx, id)
		}(i, id)
	}

	wg.Wait()
	return out
}
