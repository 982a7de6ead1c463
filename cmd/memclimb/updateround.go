package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
)

// runUpdateRound resolves a round's outcome in the audit database once the
// driving script has classified its tasks. A status of OOM or TIMEOUT also
// moves the chain row to ESCALATING with the matching pending indices.
func runUpdateRound(args []string, stdout, stderr io.Writer) int {
	var dbPath, chainID, status, oomIndices, timeoutIndices string
	var jobID, oomCount, timeoutCount int

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
		case "--status":
			v, ok := flagValue(args, &i, "--status", stderr)
			if !ok {
				return 1
			}
			status = v
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
		case "--oom-indices":
			v, ok := flagValue(args, &i, "--oom-indices", stderr)
			if !ok {
				return 1
			}
			oomIndices = v
		case "--timeout-indices":
			v, ok := flagValue(args, &i, "--timeout-indices", stderr)
			if !ok {
				return 1
			}
			timeoutIndices = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}

	if dbPath == "" || chainID == "" || jobID == 0 || status == "" {
		usage()
		return 1
	}

	updated := false
	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		if err := db.UpdateRoundStatus(ctx, chainID, jobID, status, oomCount, timeoutCount, oomIndices, timeoutIndices); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if updated {
		fmt.Fprintf(stdout, "Round updated: job %d -> %s\n", jobID, status)
	}
	return 0
}
