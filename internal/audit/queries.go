package audit

import (
	"context"
	"database/sql"
	"strings"
)

// TaskSummary aggregates task rows for one chain.
type TaskSummary struct {
	Total     int
	Completed int
	OOM       int
	Timeout   int
	Failed    int
}

// TaskSummary returns the per-state totals recorded for a chain.
func (s *Store) TaskSummary(ctx context.Context, chainID string) (TaskSummary, error) {
	var sum TaskSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'OUT_OF_MEMORY' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'TIMEOUT' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE chain_id = ?`, chainID).
		Scan(&sum.Total, &sum.Completed, &sum.OOM, &sum.Timeout, &sum.Failed)
	return sum, err
}

// FailedTask is one never-retried task row.
type FailedTask struct {
	TaskID   int
	Status   string
	ExitCode int
	Node     string
	Elapsed  string
}

// FailedTasks lists FAILED or CANCELLED task rows for a chain, ordered by
// task id, capped at limit.
func (s *Store) FailedTasks(ctx context.Context, chainID string, limit int) ([]FailedTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, exit_code, node, elapsed
		FROM tasks
		WHERE chain_id = ? AND (status = 'FAILED' OR status LIKE '%CANCEL%')
		ORDER BY task_id
		LIMIT ?`, chainID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailedTask
	for rows.Next() {
		var t FailedTask
		var node, elapsed sql.NullString
		if err := rows.Scan(&t.TaskID, &t.Status, &t.ExitCode, &node, &elapsed); err != nil {
			return nil, err
		}
		t.Node = node.String
		t.Elapsed = elapsed.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// StatusCount is one (status, count) bucket.
type StatusCount struct {
	Status string
	Count  int
}

// StatusDistribution buckets a round's task rows by status, most frequent
// first.
func (s *Store) StatusDistribution(ctx context.Context, chainID string, jobIDs []int) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*) AS cnt FROM tasks
		WHERE chain_id = ? AND job_id IN (` + placeholders(len(jobIDs)) + `)
		GROUP BY status ORDER BY cnt DESC`
	rows, err := s.db.QueryContext(ctx, query, jobArgs(chainID, jobIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RuntimeBounds returns the min/max recorded elapsed times for a round's
// tasks, with total count.
func (s *Store) RuntimeBounds(ctx context.Context, chainID string, jobIDs []int) (total int, minTime, maxTime string, err error) {
	query := `
		SELECT COUNT(*), COALESCE(MIN(elapsed), ''), COALESCE(MAX(elapsed), '')
		FROM tasks
		WHERE chain_id = ? AND job_id IN (` + placeholders(len(jobIDs)) + `)`
	err = s.db.QueryRowContext(ctx, query, jobArgs(chainID, jobIDs)...).
		Scan(&total, &minTime, &maxTime)
	return total, minTime, maxTime, err
}

// NodeCount is one (node, task count) bucket.
type NodeCount struct {
	Node  string
	Count int
}

// NodeDistribution returns the busiest nodes for a round's tasks.
func (s *Store) NodeDistribution(ctx context.Context, chainID string, jobIDs []int, limit int) ([]NodeCount, error) {
	query := `
		SELECT node, COUNT(*) AS cnt FROM tasks
		WHERE chain_id = ? AND job_id IN (` + placeholders(len(jobIDs)) + `)
		GROUP BY node ORDER BY cnt DESC LIMIT ?`
	args := append(jobArgs(chainID, jobIDs), limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeCount
	for rows.Next() {
		var nc NodeCount
		var node sql.NullString
		if err := rows.Scan(&node, &nc.Count); err != nil {
			return nil, err
		}
		nc.Node = node.String
		out = append(out, nc)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func jobArgs(chainID string, jobIDs []int) []any {
	args := make([]any, 0, len(jobIDs)+1)
	args = append(args, chainID)
	for _, id := range jobIDs {
		args = append(args, id)
	}
	return args
}
