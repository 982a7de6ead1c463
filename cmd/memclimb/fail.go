package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
)

// runMarkFailed records that a chain hit its resource ceiling with tasks
// still failing. Terminal; the remaining indices are never retried.
func runMarkFailed(args []string, stdout, stderr io.Writer) int {
	var checkpointDir, chainID, indices, dbPath string
	reason := chain.ReasonLevel

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
		case "--indices":
			v, ok := flagValue(args, &i, "--indices", stderr)
			if !ok {
				return 1
			}
			indices = v
		case "--reason":
			v, ok := flagValue(args, &i, "--reason", stderr)
			if !ok {
				return 1
			}
			reason = chain.Reason(v)
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
	if err := tracker.MarkFailed(chainID, indices, reason); err != nil {
		return warnSkip(stderr, err)
	}

	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		return db.LogAction(ctx, audit.Entry{
			ChainID:    chainID,
			ActionType: "FAIL",
			Indices:    indices,
			Details:    fmt.Sprintf(`{"reason":%q}`, string(reason)),
		})
	})

	fmt.Fprintf(stdout, "Checkpoint updated: %s\n", chainID)
	return 0
}
