package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/danshapiro/memclimb/internal/audit"
)

// runMarkCompleted finalizes a chain whose remaining tasks all succeeded.
func runMarkCompleted(args []string, stdout, stderr io.Writer) int {
	var checkpointDir, chainID, dbPath string
	var jobID, completed int

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
		case "--job":
			n, ok := flagInt(args, &i, "--job", stderr)
			if !ok {
				return 1
			}
			jobID = n
		case "--completed":
			n, ok := flagInt(args, &i, "--completed", stderr)
			if !ok {
				return 1
			}
			completed = n
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

	if checkpointDir == "" || chainID == "" {
		usage()
		return 1
	}

	tracker := newTracker(checkpointDir)
	if err := tracker.MarkCompleted(chainID, jobID, completed); err != nil {
		return warnSkip(stderr, err)
	}

	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		if err := db.CompleteChain(ctx, chainID, completed); err != nil {
			return err
		}
		return db.LogAction(ctx, audit.Entry{
			ChainID:    chainID,
			ActionType: "COMPLETE",
			JobID:      strconv.Itoa(jobID),
			Details:    fmt.Sprintf(`{"completed":%d}`, completed),
		})
	})

	fmt.Fprintf(stdout, "Checkpoint updated: %s\n", chainID)
	return 0
}
