package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
)

// runEscalate records a finished round's outcome and moves the chain to
// the next resource tier with a PENDING retry round. The driving script is
// responsible for keeping --next-level within the ladder ceiling.
func runEscalate(args []string, stdout, stderr io.Writer) int {
	var checkpointDir, chainID, nextMem, nextTime, indices, retryJobsRaw, dbPath string
	var outputPattern, errorPattern string
	var nextLevel, handlerID, completed, escalateCount, oomCount, timeoutCount, failedCount int

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
		case "--next-level":
			n, ok := flagInt(args, &i, "--next-level", stderr)
			if !ok {
				return 1
			}
			nextLevel = n
		case "--next-mem":
			v, ok := flagValue(args, &i, "--next-mem", stderr)
			if !ok {
				return 1
			}
			nextMem = v
		case "--next-time":
			v, ok := flagValue(args, &i, "--next-time", stderr)
			if !ok {
				return 1
			}
			nextTime = v
		case "--indices":
			v, ok := flagValue(args, &i, "--indices", stderr)
			if !ok {
				return 1
			}
			indices = v
		case "--retry-jobs":
			v, ok := flagValue(args, &i, "--retry-jobs", stderr)
			if !ok {
				return 1
			}
			retryJobsRaw = v
		case "--handler":
			n, ok := flagInt(args, &i, "--handler", stderr)
			if !ok {
				return 1
			}
			handlerID = n
		case "--completed":
			n, ok := flagInt(args, &i, "--completed", stderr)
			if !ok {
				return 1
			}
			completed = n
		case "--escalate":
			n, ok := flagInt(args, &i, "--escalate", stderr)
			if !ok {
				return 1
			}
			escalateCount = n
		case "--oom":
			n, ok := flagInt(args, &i, "--oom", stderr)
			if !ok {
				return 1
			}
			oomCount = n
		case "--timeout":
			n, ok := flagInt(args, &i, "--timeout", stderr)
			if !ok {
				return 1
			}
			timeoutCount = n
		case "--failed":
			n, ok := flagInt(args, &i, "--failed", stderr)
			if !ok {
				return 1
			}
			failedCount = n
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

	if checkpointDir == "" || chainID == "" || nextMem == "" {
		usage()
		return 1
	}
	retryJobs, err := parseJobIDs(retryJobsRaw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	tracker := newTracker(checkpointDir)
	err = tracker.Escalate(chainID, chain.EscalateParams{
		NextLevel:      nextLevel,
		NextMemory:     nextMem,
		NextTime:       nextTime,
		EscalateSpec:   indices,
		RetryJobIDs:    retryJobs,
		HandlerID:      handlerID,
		CompletedCount: completed,
		EscalateCount:  escalateCount,
		OOMCount:       oomCount,
		TimeoutCount:   timeoutCount,
		FailedCount:    failedCount,
	})
	if err != nil {
		return warnSkip(stderr, err)
	}

	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		firstJob := 0
		if len(retryJobs) > 0 {
			firstJob = retryJobs[0]
		}
		_, err := db.AddRound(ctx, chainID, chain.Round{
			JobID:     firstJob,
			JobIDs:    retryJobs,
			HandlerID: handlerID,
			ArraySpec: indices,
			Level:     nextLevel,
			Memory:    nextMem,
			Time:      nextTime,
			Status:    chain.RoundPending,
		}, outputPattern, errorPattern)
		if err != nil {
			return err
		}
		return db.LogAction(ctx, audit.Entry{
			ChainID:     chainID,
			ActionType:  "ESCALATE_MEM",
			JobID:       retryJobsRaw,
			MemoryLevel: nextLevel,
			Indices:     indices,
			Details:     fmt.Sprintf(`{"oom":%d,"timeout":%d,"failed":%d}`, oomCount, timeoutCount, failedCount),
		})
	})

	fmt.Fprintf(stdout, "Checkpoint updated: %s\n", chainID)
	return 0
}
