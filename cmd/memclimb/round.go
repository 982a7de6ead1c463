package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
)

// runRecordRound appends a RUNNING round after a scheduler submission.
func runRecordRound(args []string, stdout, stderr io.Writer) int {
	var checkpointDir, chainID, jobsRaw, arraySpec, mem, timeLimit, dbPath string
	var outputPattern, errorPattern string
	var handlerID, level int

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--checkpoint-dir":
			v, ok := flagValue(args, &i, "--checkpoint-dir", stderr)
			if !ok {
				return 1
			}
			checkpointDir = v
		case "--chain-id":
			v, ok := flagValue(args, &i, "--chain-id", stderr)
			if !ok {
				return 1
			}
			chainID = v
		case "--jobs":
			v, ok := flagValue(args, &i, "--jobs", stderr)
			if !ok {
				return 1
			}
			jobsRaw = v
		case "--handler":
			n, ok := flagInt(args, &i, "--handler", stderr)
			if !ok {
				return 1
			}
			handlerID = n
		case "--array-spec":
			v, ok := flagValue(args, &i, "--array-spec", stderr)
			if !ok {
				return 1
			}
			arraySpec = v
		case "--level":
			n, ok := flagInt(args, &i, "--level", stderr)
			if !ok {
				return 1
			}
			level = n
		case "--mem":
			v, ok := flagValue(args, &i, "--mem", stderr)
			if !ok {
				return 1
			}
			mem = v
		case "--time":
			v, ok := flagValue(args, &i, "--time", stderr)
			if !ok {
				return 1
			}
			timeLimit = v
		case "--output-pattern":
			v, ok := flagValue(args, &i, "--output-pattern", stderr)
			if !ok {
				return 1
			}
			outputPattern = v
		case "--error-pattern":
			v, ok := flagValue(args, &i, "--error-pattern", stderr)
			if !ok {
				return 1
			}
			errorPattern = v
		case "--db":
			v, ok := flagValue(args, &i, "--db", stderr)
			if !ok {
				return 1
			}
			dbPath = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}

	if checkpointDir == "" || chainID == "" || jobsRaw == "" {
		usage()
		return 1
	}
	jobIDs, err := parseJobIDs(jobsRaw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	tracker := newTracker(checkpointDir)
	if err := tracker.RecordRound(chainID, jobIDs, handlerID, arraySpec, level, mem, timeLimit); err != nil {
		return warnSkip(stderr, err)
	}

	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		firstJob := 0
		if len(jobIDs) > 0 {
			firstJob = jobIDs[0]
		}
		_, err := db.AddRound(ctx, chainID, chain.Round{
			JobID:     firstJob,
			JobIDs:    jobIDs,
			HandlerID: handlerID,
			ArraySpec: arraySpec,
			Level:     level,
			Memory:    mem,
			Time:      timeLimit,
			Status:    chain.RoundRunning,
		}, outputPattern, errorPattern)
		return err
	})

	fmt.Fprintf(stdout, "Checkpoint updated: %s\n", chainID)
	return 0
}
