package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/slurm"
)

// taskMetricsSource is the slice of the scheduler client save-tasks needs.
type taskMetricsSource interface {
	JobMetrics(ctx context.Context, jobID int) ([]slurm.TaskMetrics, error)
}

// runSaveTasks pulls per-task accounting metrics for a finished job out of
// sacct and persists them to the audit database. Run by the driving script
// once a round's jobs have left the queue.
func runSaveTasks(args []string, stdout, stderr io.Writer) int {
	var dbPath, chainID string
	var jobID int

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db":
			v, ok := flagValue(args, &i, "--db", stderr)
			if !ok {
				return 1
			}
			dbPath = v
		case "--chain-id":
			v, ok := flagValue(args, &i, "--chain-id", stderr)
			if !ok {
				return 1
			}
			chainID = v
		case "--job":
			n, ok := flagInt(args, &i, "--job", stderr)
			if !ok {
				return 1
			}
			jobID = n
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}

	if dbPath == "" || chainID == "" || jobID == 0 {
		usage()
		return 1
	}
	return saveTasks(dbPath, chainID, jobID, slurm.NewClient(), stdout, stderr)
}

// saveTasks never fails the caller: accounting data is an enrichment, and
// a job sacct cannot see yet must not break the escalation driver.
func saveTasks(dbPath, chainID string, jobID int, src taskMetricsSource, stdout, stderr io.Writer) int {
	metrics, err := src.JobMetrics(context.Background(), jobID)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: Could not read task metrics: %v\n", err)
		return 0
	}
	if len(metrics) == 0 {
		return 0
	}

	saved := false
	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		if err := db.SaveTaskMetrics(ctx, chainID, jobID, metrics); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if saved {
		fmt.Fprintf(stdout, "Saved %d task(s) for job %d\n", len(metrics), jobID)
	}
	return 0
}
