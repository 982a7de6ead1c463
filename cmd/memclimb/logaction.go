package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
)

// runLogAction appends a free-form audit row. Used by wrapper scripts to
// record actions the tracker itself does not drive (submissions, cancels,
// manual interventions). Failures only warn; audit is never load-bearing.
func runLogAction(args []string, stdout, stderr io.Writer) int {
	var (
		dbPath string
		entry  audit.Entry
	)
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
			entry.ChainID = v
		case "--type":
			v, ok := flagValue(args, &i, "--type", stderr)
			if !ok {
				return 1
			}
			entry.ActionType = v
		case "--job-id":
			v, ok := flagValue(args, &i, "--job-id", stderr)
			if !ok {
				return 1
			}
			entry.JobID = v
		case "--memory-level":
			v, ok := flagInt(args, &i, "--memory-level", stderr)
			if !ok {
				return 1
			}
			entry.MemoryLevel = v
		case "--time-level":
			v, ok := flagInt(args, &i, "--time-level", stderr)
			if !ok {
				return 1
			}
			entry.TimeLevel = v
		case "--indices":
			v, ok := flagValue(args, &i, "--indices", stderr)
			if !ok {
				return 1
			}
			entry.Indices = v
		case "--details":
			v, ok := flagValue(args, &i, "--details", stderr)
			if !ok {
				return 1
			}
			entry.Details = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	if dbPath == "" || entry.ChainID == "" || entry.ActionType == "" {
		usage()
		return 1
	}

	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		return db.LogAction(ctx, entry)
	})
	return 0
}
