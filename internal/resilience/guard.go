package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Call describes one guarded operation crossing a trust boundary.
type Call struct {
	Op    string            // operation name, e.g. "store.fetch_execution"
	Kind  string            // record kind reported in NotFoundError, e.g. "execution"
	ID    string            // identifier being fetched or initialized
	Attrs map[string]string // extra correlation context (step number, model, ...)
}

func (c Call) context() map[string]string {
	out := make(map[string]string, len(c.Attrs)+1)
	for k, v := range c.Attrs {
		out[k] = v
	}
	if c.ID != "" {
		key := "id"
		if c.Kind != "" {
			key = c.Kind + "_id"
		}
		out[key] = c.ID
	}
	return out
}

func (c Call) logArgs(err error) []any {
	args := []any{"op", c.Op}
	if c.Kind != "" {
		args = append(args, "kind", c.Kind)
	}
	if c.ID != "" {
		args = append(args, "id", c.ID)
	}
	for k, v := range c.Attrs {
		args = append(args, k, v)
	}
	if err != nil {
		args = append(args, "err", err)
	}
	return args
}

// Guard wraps calls to external collaborators with a timeout, error translation
// and a single log line per failure.
type Guard struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewGuard creates a Guard. timeout <= 0 leaves the caller's deadline untouched.
func NewGuard(logger *slog.Logger, timeout time.Duration) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger, timeout: timeout}
}

// Logger returns the guard's logger.
func (g *Guard) Logger() *slog.Logger { return g.logger }

// Do runs fn under the guard. A not-found signal from fn is returned as a
// *NotFoundError; every other failure, including a panic, becomes a
// *DependencyFailure carrying the call's correlation context.
func Do[T any](ctx context.Context, g *Guard, c Call, fn func(ctx context.Context) (T, error)) (result T, err error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = g.translate(c, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		var zero T
		return zero, g.translate(c, err)
	}
	return result, nil
}

func (g *Guard) translate(c Call, err error) error {
	if errors.Is(err, ErrNotFound) {
		g.logger.Debug("record not found", c.logArgs(nil)...)
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nf
		}
		return &NotFoundError{Kind: c.Kind, ID: c.ID}
	}

	var df *DependencyFailure
	if errors.As(err, &df) {
		// Already translated by an inner guard and logged there.
		return df
	}

	g.logger.Error("dependency failure", c.logArgs(err)...)
	return &DependencyFailure{Op: c.Op, Context: c.context(), Err: err}
}
