// Package sink delivers finished scenario results to persistence and
// downstream subscribers.
package sink

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/attest-ai/voxcheck/pkg/types"
)

// Sink accepts a finished ScenarioResult.
type Sink interface {
	Publish(ctx context.Context, res *types.ScenarioResult) error
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, res *types.ScenarioResult) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, res *types.ScenarioResult) error { return f(ctx, res) }

// Multi publishes to every sink and joins their errors.
type Multi []Sink

// Publish delivers res to each sink in order.
func (m Multi) Publish(ctx context.Context, res *types.ScenarioResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Writer encodes each result as one JSON line.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter returns a Sink writing NDJSON to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Publish writes res as a single line.
func (w *Writer) Publish(_ context.Context, res *types.ScenarioResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(res)
}
