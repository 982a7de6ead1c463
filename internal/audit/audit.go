// Package audit mirrors chain transitions into a SQLite database for
// reporting. The database is never read by the engine itself and is not
// authoritative: every write here is best-effort, and callers log-and-drop
// failures instead of propagating them.
package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/blake3"

	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/slurm"
)

const schema = `
CREATE TABLE IF NOT EXISTS chains (
	chain_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	partition TEXT,
	original_script TEXT NOT NULL,
	script_args TEXT,
	original_array_spec TEXT,
	total_tasks INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	status TEXT NOT NULL,
	current_level INTEGER DEFAULT 0,
	current_memory TEXT,
	current_time TEXT,
	last_escalation_reason TEXT,
	pending_indices TEXT,
	completed_count INTEGER DEFAULT 0
);
CREATE TABLE IF NOT EXISTS rounds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id TEXT NOT NULL,
	round_num INTEGER NOT NULL,
	job_id INTEGER NOT NULL,
	handler_id INTEGER,
	array_spec TEXT,
	level INTEGER NOT NULL,
	memory TEXT NOT NULL,
	time TEXT,
	partition TEXT,
	status TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	completed_at TEXT,
	oom_count INTEGER DEFAULT 0,
	timeout_count INTEGER DEFAULT 0,
	oom_indices TEXT,
	timeout_indices TEXT,
	output_pattern TEXT,
	error_pattern TEXT,
	FOREIGN KEY (chain_id) REFERENCES chains(chain_id)
);
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id TEXT NOT NULL,
	round_id INTEGER NOT NULL,
	job_id INTEGER NOT NULL,
	task_id INTEGER NOT NULL,
	status TEXT,
	exit_code INTEGER,
	signal INTEGER,
	max_rss TEXT,
	elapsed TEXT,
	timelimit TEXT,
	node TEXT,
	submit_time TEXT,
	start_time TEXT,
	end_time TEXT,
	output_path TEXT,
	error_path TEXT,
	FOREIGN KEY (chain_id) REFERENCES chains(chain_id),
	FOREIGN KEY (round_id) REFERENCES rounds(id)
);
CREATE TABLE IF NOT EXISTS actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	chain_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	job_id TEXT,
	memory_level INTEGER,
	time_level INTEGER,
	indices TEXT,
	details TEXT
);
CREATE TABLE IF NOT EXISTS configs (
	chain_id TEXT PRIMARY KEY,
	config_yaml TEXT NOT NULL,
	config_digest TEXT,
	levels_json TEXT,
	FOREIGN KEY (chain_id) REFERENCES chains(chain_id)
);
CREATE INDEX IF NOT EXISTS idx_rounds_chain ON rounds(chain_id);
CREATE INDEX IF NOT EXISTS idx_rounds_job ON rounds(job_id);
CREATE INDEX IF NOT EXISTS idx_tasks_chain ON tasks(chain_id);
CREATE INDEX IF NOT EXISTS idx_tasks_job ON tasks(job_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_actions_chain ON actions(chain_id);
`

// Store wraps the reporting database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (or opens) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().Format(time.RFC3339)
}

// CreateChain upserts the chain row from a checkpoint record.
func (s *Store) CreateChain(ctx context.Context, rec *chain.Record) error {
	args, err := json.Marshal(rec.ScriptArgs)
	if err != nil {
		return err
	}
	mode := rec.Mode
	if mode == "" {
		mode = "single"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chains
		(chain_id, mode, partition, original_script, script_args, original_array_spec,
		 total_tasks, created_at, updated_at, status, current_level, current_memory,
		 current_time, last_escalation_reason, pending_indices, completed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ChainID, mode, rec.Partition, rec.Script, string(args), rec.ArraySpec,
		rec.TotalTasks, rec.Created, s.timestamp(), string(rec.State.Status),
		rec.State.CurrentLevel, rec.State.CurrentMemory, rec.State.CurrentTime,
		string(rec.State.LastReason), rec.State.PendingIndices, rec.State.CompletedCount)
	return err
}

// AddRound inserts a round row (numbered after the chain's current maximum)
// and refreshes the chain's current tier. Returns the round row id.
func (s *Store) AddRound(ctx context.Context, chainID string, r chain.Round, outputPattern, errorPattern string) (int64, error) {
	var roundNum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round_num), 0) + 1 FROM rounds WHERE chain_id = ?`, chainID).
		Scan(&roundNum)
	if err != nil {
		return 0, err
	}

	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds
		(chain_id, round_num, job_id, handler_id, array_spec, level, memory,
		 time, status, submitted_at, output_pattern, error_pattern)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chainID, roundNum, r.JobID, r.HandlerID, r.ArraySpec, r.Level, r.Memory,
		r.Time, string(r.Status), now, outputPattern, errorPattern)
	if err != nil {
		return 0, err
	}
	roundID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE chains SET updated_at = ?, current_level = ?, current_memory = ?,
		                  current_time = ?, status = 'RUNNING'
		WHERE chain_id = ?`,
		now, r.Level, r.Memory, r.Time, chainID)
	return roundID, err
}

// UpdateRoundStatus records a round's outcome and the matching chain-level
// escalation bookkeeping.
func (s *Store) UpdateRoundStatus(ctx context.Context, chainID string, jobID int, status string, oomCount, timeoutCount int, oomIndices, timeoutIndices string) error {
	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE rounds SET status = ?, completed_at = ?, oom_count = ?, timeout_count = ?,
		                  oom_indices = ?, timeout_indices = ?
		WHERE chain_id = ? AND job_id = ?`,
		status, now, oomCount, timeoutCount, oomIndices, timeoutIndices, chainID, jobID); err != nil {
		return err
	}

	chainStatus := status
	if status == "OOM" || status == "TIMEOUT" {
		chainStatus = "ESCALATING"
	}
	pending := oomIndices
	if pending == "" {
		pending = timeoutIndices
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE chains SET updated_at = ?, status = ?,
		                  last_escalation_reason = CASE WHEN ? IN ('OOM', 'TIMEOUT')
		                                           THEN ? ELSE last_escalation_reason END,
		                  pending_indices = ?
		WHERE chain_id = ?`,
		now, chainStatus, status, status, pending, chainID)
	return err
}

// CompleteChain marks the chain row COMPLETED.
func (s *Store) CompleteChain(ctx context.Context, chainID string, completedCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chains SET updated_at = ?, status = 'COMPLETED', completed_count = ?,
		                  pending_indices = NULL
		WHERE chain_id = ?`,
		s.timestamp(), completedCount, chainID)
	return err
}

// SaveTaskMetrics persists per-task accounting rows for one job of a
// round, resolving %A/%a placeholders in the round's output patterns to
// concrete file paths.
func (s *Store) SaveTaskMetrics(ctx context.Context, chainID string, jobID int, metrics []slurm.TaskMetrics) error {
	if len(metrics) == 0 {
		return nil
	}

	var roundID int64
	var outputPattern, errorPattern sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, output_pattern, error_pattern FROM rounds
		WHERE chain_id = ? AND job_id = ?`, chainID, jobID).
		Scan(&roundID, &outputPattern, &errorPattern)
	if err != nil {
		return err
	}

	for _, m := range metrics {
		outputPath := resolvePattern(outputPattern.String, jobID, m.TaskID)
		errorPath := resolvePattern(errorPattern.String, jobID, m.TaskID)
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO tasks
			(chain_id, round_id, job_id, task_id, status, exit_code, signal,
			 max_rss, elapsed, timelimit, node, submit_time, start_time, end_time,
			 output_path, error_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			chainID, roundID, jobID, m.TaskID, m.State, m.ExitCode, m.Signal,
			m.MaxRSS, m.Elapsed, m.Timelimit, m.Node, m.Submit, m.Start, m.End,
			outputPath, errorPath); err != nil {
			return err
		}
	}
	return nil
}

func resolvePattern(pattern string, jobID, taskID int) string {
	out := strings.ReplaceAll(pattern, "%A", fmt.Sprint(jobID))
	return strings.ReplaceAll(out, "%a", fmt.Sprint(taskID))
}

// Entry is one action-log row.
type Entry struct {
	ChainID     string
	ActionType  string
	JobID       string
	MemoryLevel int
	TimeLevel   int
	Indices     string
	Details     string
}

// LogAction appends an audit action row.
func (s *Store) LogAction(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (timestamp, chain_id, action_type, job_id,
		                     memory_level, time_level, indices, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.timestamp(), e.ChainID, e.ActionType, e.JobID,
		e.MemoryLevel, e.TimeLevel, e.Indices, e.Details)
	return err
}

// SaveConfigSnapshot stores the raw config document for a chain, keyed by
// chain id and stamped with the document's blake3 digest so drift between
// rounds is detectable.
func (s *Store) SaveConfigSnapshot(ctx context.Context, chainID string, configYAML []byte, levels []chain.Level) error {
	levelsJSON, err := json.Marshal(levels)
	if err != nil {
		return err
	}
	digest := blake3.Sum256(configYAML)
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO configs (chain_id, config_yaml, config_digest, levels_json)
		VALUES (?, ?, ?, ?)`,
		chainID, string(configYAML), hex.EncodeToString(digest[:]), string(levelsJSON))
	return err
}
