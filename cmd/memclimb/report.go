package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/checkpoint"
	"github.com/danshapiro/memclimb/internal/report"
)

// runReport renders a markdown report for one checkpoint file or for every
// checkpoint in a directory. The audit database is optional; without it the
// report falls back to checkpoint-only counts.
func runReport(args []string, stdout, stderr io.Writer) int {
	var (
		file     string
		dir      string
		dbPath   string
		all      bool
		detailed bool
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--all":
			all = true
		case "--detailed":
			detailed = true
		case "--checkpoint-dir":
			v, ok := flagValue(args, &i, "--checkpoint-dir", stderr)
			if !ok {
				return 1
			}
			dir = v
		case "--db":
			v, ok := flagValue(args, &i, "--db", stderr)
			if !ok {
				return 1
			}
			dbPath = v
		default:
			if file != "" {
				fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
				return 1
			}
			file = args[i]
		}
	}

	var recs []*chain.Record
	switch {
	case all:
		if dir == "" {
			usage()
			return 1
		}
		store := checkpoint.NewStore(dir)
		ids, err := store.List()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, id := range ids {
			rec, err := store.Load(id)
			if err != nil {
				fmt.Fprintf(stderr, "Warning: skipping %s: %v\n", id, err)
				continue
			}
			recs = append(recs, rec)
		}
	case file != "":
		rec, err := checkpoint.LoadFile(file)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		recs = append(recs, rec)
	default:
		usage()
		return 1
	}

	var db *audit.Store
	if dbPath != "" {
		var err error
		db, err = audit.Open(dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: Could not open database: %v\n", err)
		} else {
			defer db.Close()
		}
	}

	if err := report.Write(context.Background(), stdout, recs, db, report.Options{Detailed: detailed}); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
