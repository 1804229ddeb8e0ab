package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

// FileName is the database file created under tmpDir.
const FileName = "history.db"

// ErrNotFound is returned when a run, cycle or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Kind names a stored cycle artifact. It doubles as the log file stem
// <logType>_<stage> under generationCycle<N>.
type Kind string

const (
	KindPrompt     Kind = "generation_request"
	KindGeneration Kind = "generation_response"
	KindBuild      Kind = "build_result"
	KindTest       Kind = "test_result"
)

// Kinds lists every artifact kind.
var Kinds = []Kind{KindPrompt, KindGeneration, KindBuild, KindTest}

// column maps a Kind to its cycles column.
func (k Kind) column() (string, error) {
	switch k {
	case KindPrompt:
		return "prompt", nil
	case KindGeneration:
		return "generation_output", nil
	case KindBuild:
		return "build_log", nil
	case KindTest:
		return "test_log", nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", k)
	}
}

// Run is one orchestrator run.
type Run struct {
	ID          string
	Model       string
	StartedAt   time.Time
	EndedAt     *time.Time
	Outcome     engine.Outcome
	TotalCycles int
	Escalated   bool
	Error       string
}

// Cycle is one persisted generation cycle.
type Cycle struct {
	RunID      string
	Number     int
	Model      string
	Stage      engine.CycleResult
	Prompt     string
	Generation string
	BuildLog   string
	TestLog    string
	Changes    *engine.ChangeSummary
	Hints      []string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Store persists runs and cycles in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	// WAL lets the bridge read artifacts while a run writes.
	dsn := "file:" + filepath.ToSlash(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// OpenInDir opens tmpDir/history.db.
func OpenInDir(ctx context.Context, tmpDir string) (*Store, error) {
	return Open(ctx, filepath.Join(tmpDir, FileName))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		model        TEXT NOT NULL,
		started_at   INTEGER NOT NULL,
		ended_at     INTEGER,
		outcome      TEXT NOT NULL DEFAULT '',
		total_cycles INTEGER NOT NULL DEFAULT 0,
		escalated    INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS cycles (
		run_id            TEXT NOT NULL,
		number            INTEGER NOT NULL,
		model             TEXT NOT NULL,
		stage             TEXT NOT NULL,
		prompt            TEXT NOT NULL DEFAULT '',
		generation_output TEXT NOT NULL DEFAULT '',
		build_log         TEXT NOT NULL DEFAULT '',
		test_log          TEXT NOT NULL DEFAULT '',
		changes_json      TEXT,
		hints_json        TEXT NOT NULL DEFAULT '[]',
		started_at        INTEGER NOT NULL,
		ended_at          INTEGER NOT NULL,
		PRIMARY KEY (run_id, number),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// StartRun inserts a new run.
func (s *Store) StartRun(ctx context.Context, id, model string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, model, started_at) VALUES (?, ?, ?)`,
		id, model, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, rep engine.Report, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, outcome = ?, total_cycles = ?, escalated = ?, error = ? WHERE id = ?`,
		endedAt.UnixMilli(), string(rep.Outcome), rep.TotalCycles, boolToInt(rep.Escalated), rep.Err, rep.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", rep.RunID, ErrNotFound)
	}
	return nil
}

// RecordCycle stores one cycle. Recording the same number twice replaces it.
func (s *Store) RecordCycle(ctx context.Context, c Cycle) error {
	hints, err := json.Marshal(nonNil(c.Hints))
	if err != nil {
		return fmt.Errorf("failed to marshal hints: %w", err)
	}
	var changes sql.NullString
	if c.Changes != nil {
		data, err := json.Marshal(c.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changes = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles
			(run_id, number, model, stage, prompt, generation_output, build_log, test_log,
			 changes_json, hints_json, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Number, c.Model, string(c.Stage), c.Prompt, c.Generation, c.BuildLog, c.TestLog,
		changes, string(hints), c.StartedAt.UnixMilli(), c.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", c.Number, err)
	}
	return nil
}

// Artifact returns one stored artifact of a cycle.
func (s *Store) Artifact(ctx context.Context, runID string, cycle int, kind Kind) (string, error) {
	col, err := kind.column()
	if err != nil {
		return "", err
	}
	var out string
	err = s.db.QueryRowContext(ctx,
		`SELECT `+col+` FROM cycles WHERE run_id = ? AND number = ?`, runID, cycle).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("cycle %d of run %s: %w", cycle, runID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query artifact: %w", err)
	}
	return out, nil
}

// Cycles returns every cycle of a run in order.
func (s *Store) Cycles(ctx context.Context, runID string) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, number, model, stage, prompt, generation_output, build_log, test_log,
		       changes_json, hints_json, started_at, ended_at
		FROM cycles WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var (
			c                Cycle
			stage, hintsJSON string
			changesJSON      sql.NullString
			started, ended   int64
		)
		if err := rows.Scan(&c.RunID, &c.Number, &c.Model, &stage, &c.Prompt, &c.Generation,
			&c.BuildLog, &c.TestLog, &changesJSON, &hintsJSON, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.Stage = engine.CycleResult(stage)
		c.StartedAt = time.UnixMilli(started)
		c.EndedAt = time.UnixMilli(ended)
		if err := json.Unmarshal([]byte(hintsJSON), &c.Hints); err != nil {
			return nil, fmt.Errorf("failed to decode hints of cycle %d: %w", c.Number, err)
		}
		if changesJSON.Valid {
			var cs engine.ChangeSummary
			if err := json.Unmarshal([]byte(changesJSON.String), &cs); err != nil {
				return nil, fmt.Errorf("failed to decode changes of cycle %d: %w", c.Number, err)
			}
			c.Changes = &cs
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// Run returns one run.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, started_at, ended_at, outcome, total_cycles, escalated, error
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, started_at, ended_at, outcome, total_cycles, escalated, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("no runs: %w", ErrNotFound)
	}
	return r, err
}

func scanRun(row *sql.Row) (Run, error) {
	var (
		r         Run
		outcome   string
		started   int64
		ended     sql.NullInt64
		escalated int
	)
	if err := row.Scan(&r.ID, &r.Model, &started, &ended, &outcome, &r.TotalCycles, &escalated, &r.Error); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		r.EndedAt = &t
	}
	r.Outcome = engine.Outcome(outcome)
	r.Escalated = escalated != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
