package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/checkpoint"
)

// flagValue pulls the value for a flag that requires one, advancing the
// index. Reports an error to stderr and returns false when missing.
func flagValue(args []string, i *int, name string, stderr io.Writer) (string, bool) {
	*i++
	if *i >= len(args) {
		fmt.Fprintf(stderr, "%s requires a value\n", name)
		return "", false
	}
	return args[*i], true
}

func flagInt(args []string, i *int, name string, stderr io.Writer) (int, bool) {
	raw, ok := flagValue(args, i, name, stderr)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(stderr, "%s must be an integer, got %q\n", name, raw)
		return 0, false
	}
	return n, true
}

// parseJobIDs splits a comma-separated job id list ("12345" or
// "12345,12346" when an array was split into batches).
func parseJobIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad job id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// newTracker wires the state machine to a checkpoint directory.
func newTracker(dir string) *chain.Tracker {
	return chain.NewTracker(checkpoint.NewStore(dir))
}

// warnSkip reports a failed read-then-modify checkpoint operation and tells
// the caller to carry on. One bad round must not wedge the chain, so these
// commands exit zero after warning.
func warnSkip(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Warning: Could not update checkpoint: %v\n", err)
	return 0
}

// withAudit runs fn against the audit database when a path is configured.
// The audit store is not authoritative: open and write failures are warned
// about and swallowed.
func withAudit(dbPath string, stderr io.Writer, fn func(ctx context.Context, db *audit.Store) error) {
	if dbPath == "" {
		return
	}
	db, err := audit.Open(dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: Could not log to database: %v\n", err)
		return
	}
	defer db.Close()
	if err := fn(context.Background(), db); err != nil {
		fmt.Fprintf(stderr, "Warning: Could not log to database: %v\n", err)
	}
}

// rawConfig re-reads the config document verbatim for snapshotting.
func rawConfig(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// shellQuote renders s safe for interpolation into a POSIX shell line,
// matching the quoting the driving bash script expects.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ':' || r == ',' || r == '@' || r == '+' || r == '=' || r == '%':
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
