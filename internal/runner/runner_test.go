package runner_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/attest-ai/voxcheck/internal/embedding"
	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/internal/runner"
	"github.com/attest-ai/voxcheck/internal/scenario"
	"github.com/attest-ai/voxcheck/internal/similarity"
	"github.com/attest-ai/voxcheck/internal/sink"
	"github.com/attest-ai/voxcheck/internal/store"
	"github.com/attest-ai/voxcheck/internal/validate"
	"github.com/attest-ai/voxcheck/pkg/types"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func newExecutor() *scenario.Executor {
	scorer := similarity.NewStaticScorer(embedding.NewHashEmbedder(), quietLogger())
	return scenario.NewExecutor(validate.New(scorer), scenario.WithLogger(quietLogger()))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runner.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sc := &types.Scenario{
		ID:                  "greeting",
		AllowPartialSuccess: true,
		Steps: []types.ScenarioStep{
			{StepNumber: 1, ExpectedResponse: "Step 1", CanRecover: true},
			{StepNumber: 2, ExpectedResponse: "Step 2"},
		},
	}
	if err := s.SaveScenario(context.Background(), sc); err != nil {
		t.Fatalf("SaveScenario: %v", err)
	}
	return s
}

type collect struct {
	mu  sync.Mutex
	got []*types.ScenarioResult
}

func (c *collect) Publish(_ context.Context, res *types.ScenarioResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, res)
	return nil
}

func TestExecuteStored_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id, err := st.CreateExecution(ctx, "greeting", []string{"Wrong response", "Step 2"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	c := &collect{}
	svc := runner.NewService(st, newExecutor(), sink.Multi{sink.Func(st.SaveResult), c}, nil, quietLogger())

	res, err := svc.ExecuteStored(ctx, id)
	if err != nil {
		t.Fatalf("ExecuteStored: %v", err)
	}
	if res.ExecutionID != id || res.ScenarioID != "greeting" {
		t.Errorf("ids = %q/%q", res.ExecutionID, res.ScenarioID)
	}
	if !res.Recovered || !res.PartialSuccess || res.SuccessfulSteps != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(c.got) != 1 || c.got[0] != res {
		t.Errorf("sink received %d results", len(c.got))
	}

	saved, err := st.FetchResult(ctx, id)
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if saved.SuccessfulSteps != 1 {
		t.Errorf("saved result = %+v", saved)
	}
}

func TestExecuteStored_ExecutionNotFound(t *testing.T) {
	st := newTestStore(t)
	svc := runner.NewService(st, newExecutor(), nil, nil, quietLogger())

	_, err := svc.ExecuteStored(context.Background(), "nope")
	var nf *resilience.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "execution" {
		t.Fatalf("expected execution NotFoundError, got %v", err)
	}
}

func TestExecuteStored_ScenarioNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id, err := st.CreateExecution(ctx, "deleted-scenario", []string{"x"})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	svc := runner.NewService(st, newExecutor(), nil, nil, quietLogger())

	_, err = svc.ExecuteStored(ctx, id)
	var nf *resilience.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "scenario" || nf.ID != "deleted-scenario" {
		t.Fatalf("expected scenario NotFoundError, got %v", err)
	}
}

type brokenFetcher struct{ err error }

func (b brokenFetcher) FetchExecution(context.Context, string) (*store.ExecutionRecord, error) {
	return nil, b.err
}

func (b brokenFetcher) FetchExpectedOutcome(context.Context, string) (*store.OutcomeRecord, error) {
	return nil, b.err
}

func TestExecuteStored_TransportFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	svc := runner.NewService(brokenFetcher{err: errors.New("connection reset")}, newExecutor(), nil, resilience.NewGuard(logger, 0), logger)

	_, err := svc.ExecuteStored(context.Background(), "exec-7")
	var df *resilience.DependencyFailure
	if !errors.As(err, &df) {
		t.Fatalf("expected DependencyFailure, got %v", err)
	}
	if df.Context["execution_id"] != "exec-7" {
		t.Errorf("context = %v", df.Context)
	}
	if resilience.IsNotFound(err) {
		t.Error("transport failure reported as not-found")
	}
	if !strings.Contains(logs.String(), "exec-7") {
		t.Errorf("failure log lacks execution id: %q", logs.String())
	}
}

func TestExecuteStored_SinkFailureIgnored(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id, _ := st.CreateExecution(ctx, "greeting", []string{"Step 1", "Step 2"})

	failing := sink.Func(func(context.Context, *types.ScenarioResult) error { return errors.New("webhook down") })
	svc := runner.NewService(st, newExecutor(), failing, nil, quietLogger())

	res, err := svc.ExecuteStored(ctx, id)
	if err != nil {
		t.Fatalf("sink failure must not fail the call: %v", err)
	}
	if !res.Passed {
		t.Errorf("result = %+v", res)
	}
}

func TestPool_RunIsolatesFailures(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		resp := []string{"Step 1", "Step 2"}
		if i%2 == 1 {
			resp = []string{"Step 1"}
		}
		id, err := st.CreateExecution(ctx, "greeting", resp)
		if err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
		ids = append(ids, id)
	}
	ids = append(ids, "missing-execution")

	svc := runner.NewService(st, newExecutor(), sink.Func(st.SaveResult), nil, quietLogger())
	outcomes := runner.NewPool(svc, 3, quietLogger()).Run(ctx, ids)

	if len(outcomes) != len(ids) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(ids))
	}
	for i, o := range outcomes[:6] {
		if o.ExecutionID != ids[i] {
			t.Errorf("outcome %d out of order", i)
		}
		if o.Err != nil {
			t.Errorf("execution %d: %v", i, o.Err)
			continue
		}
		if want := i%2 == 0; o.Result.Passed != want {
			t.Errorf("execution %d passed = %v, want %v", i, o.Result.Passed, want)
		}
	}
	if last := outcomes[6]; !resilience.IsNotFound(last.Err) {
		t.Errorf("missing execution err = %v", last.Err)
	}

	pending, err := st.PendingExecutions(ctx, 100)
	if err != nil {
		t.Fatalf("PendingExecutions: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("%d executions left pending", len(pending))
	}
}

func TestPool_CancelledBeforeStart(t *testing.T) {
	st := newTestStore(t)
	svc := runner.NewService(st, newExecutor(), nil, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := runner.NewPool(svc, 1, quietLogger()).Run(ctx, []string{"a", "b"})
	for _, o := range outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", o.ExecutionID, o.Err)
		}
	}
}
