// Package slurm queries the cluster scheduler's accounting (sacct) and
// live-queue (squeue) tools and parses their delimiter output. All calls
// are short, synchronous and best-effort: a timeout or non-zero exit means
// "no data available this call", never a crash in the caller.
package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each external query.
const DefaultTimeout = 5 * time.Second

// QueryError wraps a failed or malformed scheduler query. Callers treat it
// as "status unknown this round" and retry on a later invocation.
type QueryError struct {
	Tool string
	Err  error
}

func (e *QueryError) Error() string { return fmt.Sprintf("%s query: %v", e.Tool, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// TaskStatus is one terminal task row from sacct: raw state (first word
// only; sacct appends "by ..." to CANCELLED), parsed exit code and signal,
// and the array task id extracted from "<job>_<task>" (0 for non-array).
type TaskStatus struct {
	JobSpec  string
	TaskID   int
	State    string
	ExitCode int
	Signal   int
}

// TaskMetrics is the detailed per-task accounting row used by the audit
// store.
type TaskMetrics struct {
	TaskID    int
	State     string
	ExitCode  int
	Signal    int
	MaxRSS    string
	Elapsed   string
	Timelimit string
	Node      string
	Submit    string
	Start     string
	End       string
}

// Client shells out to the scheduler tools. The runner is injectable for
// tests.
type Client struct {
	Timeout time.Duration
	runner  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewClient returns a client with the default timeout and a real exec
// runner.
func NewClient() *Client {
	return &Client{
		Timeout: DefaultTimeout,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

func (c *Client) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.runner(ctx, name, args...)
	if err != nil {
		return nil, &QueryError{Tool: name, Err: err}
	}
	return out, nil
}

// JobTasks queries terminal state and exit code for every task of a job.
func (c *Client) JobTasks(ctx context.Context, jobID int) ([]TaskStatus, error) {
	out, err := c.run(ctx, "sacct",
		"-n", "-X", "-j", strconv.Itoa(jobID),
		"-o", "JobID,State,ExitCode", "--parsable2")
	if err != nil {
		return nil, err
	}

	var tasks []TaskStatus
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		code, sig := parseExitCode(parts[2])
		tasks = append(tasks, TaskStatus{
			JobSpec:  parts[0],
			TaskID:   parseTaskID(parts[0]),
			State:    firstWord(parts[1]),
			ExitCode: code,
			Signal:   sig,
		})
	}
	return tasks, nil
}

// JobMetrics queries the detailed accounting fields for every task of a
// job.
func (c *Client) JobMetrics(ctx context.Context, jobID int) ([]TaskMetrics, error) {
	out, err := c.run(ctx, "sacct",
		"-n", "-X", "-j", strconv.Itoa(jobID),
		"-o", "JobID,State,ExitCode,MaxRSS,Elapsed,Timelimit,NodeList,Submit,Start,End",
		"--parsable2")
	if err != nil {
		return nil, err
	}

	var metrics []TaskMetrics
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 10 {
			continue
		}
		code, sig := parseExitCode(parts[2])
		metrics = append(metrics, TaskMetrics{
			TaskID:    parseTaskID(parts[0]),
			State:     firstWord(parts[1]),
			ExitCode:  code,
			Signal:    sig,
			MaxRSS:    parts[3],
			Elapsed:   parts[4],
			Timelimit: parts[5],
			Node:      parts[6],
			Submit:    parts[7],
			Start:     parts[8],
			End:       parts[9],
		})
	}
	return metrics, nil
}

// QueueState returns the live-queue state of a job (PENDING, RUNNING, ...)
// and whether the job is still in the queue at all. Used only for human
// status display.
func (c *Client) QueueState(ctx context.Context, jobID int) (string, bool, error) {
	out, err := c.run(ctx, "squeue", "-j", strconv.Itoa(jobID), "-h", "-o", "%T %r")
	if err != nil {
		return "", false, err
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", false, nil
	}
	return firstWord(line), true, nil
}

// parseTaskID extracts the array task index from a job spec like "100_7".
// A plain job id maps to task 0.
func parseTaskID(jobSpec string) int {
	idx := strings.Index(jobSpec, "_")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(jobSpec[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// parseExitCode splits sacct's "return:signal" exit code field.
func parseExitCode(raw string) (code, signal int) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return 0, 0
	}
	c, err1 := strconv.Atoi(raw[:idx])
	s, err2 := strconv.Atoi(raw[idx+1:])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return c, s
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
