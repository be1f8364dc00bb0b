// Package store persists scenarios, executions and their results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/attest-ai/voxcheck/internal/resilience"
	"github.com/attest-ai/voxcheck/pkg/types"
)

// busyTimeoutDSN sets the busy timeout on every pooled connection.
const busyTimeoutDSN = "?_pragma=busy_timeout(5000)"

// Execution statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// ExecutionRecord is one captured run of a scenario awaiting or holding a verdict.
type ExecutionRecord struct {
	ID         string
	ScenarioID string
	Responses  []string
	Status     string
	CreatedAt  time.Time
}

// OutcomeRecord is the expected outcome of a scenario: its authored steps.
type OutcomeRecord struct {
	ScenarioID string
	Scenario   types.Scenario
}

// StepStats summarizes the persisted scores of one step across executions.
type StepStats struct {
	StepNumber int     `json:"step_number"`
	Count      int     `json:"count"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	PassRate   float64 `json:"pass_rate"`
}

// Store is a SQLite-backed persistence collaborator.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+busyTimeoutDSN)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS scenarios (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			document   BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id          TEXT PRIMARY KEY,
			scenario_id TEXT NOT NULL,
			responses   BLOB NOT NULL,
			status      TEXT NOT NULL,
			result      BLOB,
			created_at  INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS step_results (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT    NOT NULL,
			scenario_id  TEXT    NOT NULL,
			step_number  INTEGER NOT NULL,
			score        REAL    NOT NULL,
			passed       INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_results_step ON step_results (scenario_id, step_number)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveScenario inserts or replaces a scenario definition. The scenario must have an ID.
func (s *Store) SaveScenario(ctx context.Context, sc *types.Scenario) error {
	if sc.ID == "" {
		return errors.New("store: save scenario: id is required")
	}
	doc, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("store: encode scenario: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, name, document, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, document=excluded.document, updated_at=excluded.updated_at`,
		sc.ID, sc.Name, doc, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: save scenario: %w", err)
	}
	return nil
}

// CreateExecution records the captured responses of a new run of scenarioID
// and returns its generated id.
func (s *Store) CreateExecution(ctx context.Context, scenarioID string, responses []string) (string, error) {
	if responses == nil {
		responses = []string{}
	}
	blob, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("store: encode responses: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, scenario_id, responses, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, scenarioID, blob, StatusPending, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("store: create execution: %w", err)
	}
	return id, nil
}

// FetchExecution returns the execution with the given id, or a
// *resilience.NotFoundError when none exists. Each fetch uses its own
// connection, released before returning.
func (s *Store) FetchExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: fetch execution: %w", err)
	}
	defer conn.Close()

	var (
		rec       = ExecutionRecord{ID: id}
		blob      []byte
		createdAt int64
	)
	err = conn.QueryRowContext(ctx,
		`SELECT scenario_id, responses, status, created_at FROM executions WHERE id = ?`, id,
	).Scan(&rec.ScenarioID, &blob, &rec.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch execution: %w", err)
	}
	if err := json.Unmarshal(blob, &rec.Responses); err != nil {
		return nil, fmt.Errorf("store: decode responses: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

// FetchExpectedOutcome returns the authored scenario for scenarioID, or a
// *resilience.NotFoundError when none exists.
func (s *Store) FetchExpectedOutcome(ctx context.Context, scenarioID string) (*OutcomeRecord, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: fetch scenario: %w", err)
	}
	defer conn.Close()

	var doc []byte
	err = conn.QueryRowContext(ctx, `SELECT document FROM scenarios WHERE id = ?`, scenarioID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "scenario", ID: scenarioID}
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch scenario: %w", err)
	}

	out := &OutcomeRecord{ScenarioID: scenarioID}
	if err := json.Unmarshal(doc, &out.Scenario); err != nil {
		return nil, fmt.Errorf("store: decode scenario: %w", err)
	}
	return out, nil
}

// SaveResult persists a scenario result and its step scores in one
// transaction. Results without an execution id only contribute step scores.
func (s *Store) SaveResult(ctx context.Context, res *types.ScenarioResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: encode result: %w", err)
	}
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if res.ExecutionID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE executions SET status = ?, result = ?, finished_at = ? WHERE id = ?`,
			StatusCompleted, doc, now, res.ExecutionID,
		); err != nil {
			return fmt.Errorf("store: update execution: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO step_results (execution_id, scenario_id, step_number, score, passed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, sr := range res.StepResults {
		if _, err := stmt.ExecContext(ctx, res.ExecutionID, res.ScenarioID, sr.StepNumber, sr.Score, sr.Passed, now); err != nil {
			return fmt.Errorf("store: insert step %d: %w", sr.StepNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit result: %w", err)
	}
	return nil
}

// FetchResult returns the persisted result of a completed execution.
func (s *Store) FetchResult(ctx context.Context, executionID string) (*types.ScenarioResult, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM executions WHERE id = ? AND result IS NOT NULL`, executionID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &resilience.NotFoundError{Kind: "result", ID: executionID}
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch result: %w", err)
	}
	var res types.ScenarioResult
	if err := json.Unmarshal(doc, &res); err != nil {
		return nil, fmt.Errorf("store: decode result: %w", err)
	}
	return &res, nil
}

// PendingExecutions returns the ids of executions without a result, oldest first.
func (s *Store) PendingExecutions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM executions WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: pending executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan execution id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: pending executions rows: %w", err)
	}
	return ids, nil
}

// StepStats computes the mean, population standard deviation, count and pass
// rate of every persisted score for each step of scenarioID, ordered by step.
func (s *Store) StepStats(ctx context.Context, scenarioID string) ([]StepStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_number, score, passed FROM step_results WHERE scenario_id = ? ORDER BY step_number`,
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: step stats: %w", err)
	}
	defer rows.Close()

	type acc struct {
		scores []float64
		passed int
	}
	var order []int
	byStep := make(map[int]*acc)
	for rows.Next() {
		var (
			step   int
			score  float64
			passed bool
		)
		if err := rows.Scan(&step, &score, &passed); err != nil {
			return nil, fmt.Errorf("store: step stats scan: %w", err)
		}
		a, ok := byStep[step]
		if !ok {
			a = &acc{}
			byStep[step] = a
			order = append(order, step)
		}
		a.scores = append(a.scores, score)
		if passed {
			a.passed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: step stats rows: %w", err)
	}

	out := make([]StepStats, 0, len(order))
	for _, step := range order {
		a := byStep[step]
		mean, stddev := meanStdDev(a.scores)
		out = append(out, StepStats{
			StepNumber: step,
			Count:      len(a.scores),
			Mean:       mean,
			StdDev:     stddev,
			PassRate:   float64(a.passed) / float64(len(a.scores)),
		})
	}
	return out, nil
}

// meanStdDev returns the mean and population standard deviation of xs.
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sumSqDiff float64
	for _, x := range xs {
		d := x - mean
		sumSqDiff += d * d
	}
	return mean, math.Sqrt(sumSqDiff / float64(len(xs)))
}
