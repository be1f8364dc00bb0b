package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestGuard(timeout time.Duration) (*Guard, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewGuard(logger, timeout), &buf
}

func TestDo_Success(t *testing.T) {
	g, buf := newTestGuard(0)
	got, err := Do(context.Background(), g, Call{Op: "store.fetch_execution", Kind: "execution", ID: "e1"},
		func(context.Context) (string, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %q", buf.String())
	}
}

func TestDo_TransportErrorBecomesDependencyFailure(t *testing.T) {
	g, buf := newTestGuard(0)
	cause := errors.New("connection refused")

	_, err := Do(context.Background(), g, Call{Op: "store.fetch_execution", Kind: "execution", ID: "e42"},
		func(context.Context) (int, error) { return 0, cause })

	var df *DependencyFailure
	if !errors.As(err, &df) {
		t.Fatalf("expected DependencyFailure, got %T: %v", err, err)
	}
	if df.Op != "store.fetch_execution" {
		t.Errorf("Op = %q", df.Op)
	}
	if df.Context["execution_id"] != "e42" {
		t.Errorf("Context = %v, want execution_id=e42", df.Context)
	}
	if !errors.Is(err, cause) {
		t.Error("DependencyFailure should unwrap to the original cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error message lost original text: %q", err.Error())
	}
	if IsNotFound(err) {
		t.Error("transport failure must not look like not-found")
	}
	if n := strings.Count(buf.String(), "dependency failure"); n != 1 {
		t.Errorf("logged %d times, want exactly once:\n%s", n, buf.String())
	}
}

func TestDo_NotFoundIsDistinguished(t *testing.T) {
	g, buf := newTestGuard(0)

	_, err := Do(context.Background(), g, Call{Op: "store.fetch_execution", Kind: "execution", ID: "missing"},
		func(context.Context) (int, error) { return 0, fmt.Errorf("query: %w", ErrNotFound) })

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
	if nf.Kind != "execution" || nf.ID != "missing" {
		t.Errorf("NotFoundError = %+v", nf)
	}
	if IsDependencyFailure(err) {
		t.Error("not-found must not be a DependencyFailure")
	}
	if strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("not-found should not log at error level:\n%s", buf.String())
	}
}

func TestDo_ExistingNotFoundErrorPreserved(t *testing.T) {
	g, _ := newTestGuard(0)
	orig := &NotFoundError{Kind: "scenario", ID: "s9"}

	_, err := Do(context.Background(), g, Call{Op: "store.fetch_expected_outcome", Kind: "execution", ID: "e1"},
		func(context.Context) (int, error) { return 0, orig })

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf != orig {
		t.Fatalf("expected original NotFoundError, got %v", err)
	}
}

func TestDo_PanicBecomesDependencyFailure(t *testing.T) {
	g, _ := newTestGuard(0)

	_, err := Do(context.Background(), g, Call{Op: "similarity.init"},
		func(context.Context) (int, error) { panic("model file corrupt") })

	if !IsDependencyFailure(err) {
		t.Fatalf("expected DependencyFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "model file corrupt") {
		t.Errorf("panic value missing from error: %q", err.Error())
	}
}

func TestDo_NestedGuardLogsOnce(t *testing.T) {
	g, buf := newTestGuard(0)
	inner := func(ctx context.Context) (int, error) {
		return Do(ctx, g, Call{Op: "inner"}, func(context.Context) (int, error) {
			return 0, errors.New("boom")
		})
	}

	_, err := Do(context.Background(), g, Call{Op: "outer"}, inner)
	var df *DependencyFailure
	if !errors.As(err, &df) {
		t.Fatalf("expected DependencyFailure, got %v", err)
	}
	if df.Op != "inner" {
		t.Errorf("Op = %q, want inner", df.Op)
	}
	if n := strings.Count(buf.String(), "dependency failure"); n != 1 {
		t.Errorf("logged %d times, want 1", n)
	}
}

func TestDo_TimeoutApplied(t *testing.T) {
	g, _ := newTestGuard(20 * time.Millisecond)

	start := time.Now()
	_, err := Do(context.Background(), g, Call{Op: "slow"}, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !IsDependencyFailure(err) {
		t.Error("timeout should surface as DependencyFailure")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("guard timeout not applied")
	}
}

func TestCallContextAttrs(t *testing.T) {
	c := Call{Op: "x", ID: "abc", Attrs: map[string]string{"step": "3"}}
	ctx := c.context()
	if ctx["id"] != "abc" || ctx["step"] != "3" {
		t.Errorf("context = %v", ctx)
	}
}
