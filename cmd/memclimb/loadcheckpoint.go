package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danshapiro/memclimb/internal/checkpoint"
)

// runLoad emits resume variables for the driving script from a checkpoint
// file. This is a pure read producing output, so failure is fatal.
func runLoad(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}
	path := args[0]

	rec, err := checkpoint.LoadFile(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "CHECKPOINT_FILE=%s\n", shellQuote(path))
	fmt.Fprintf(stdout, "SCRIPT=%s\n", shellQuote(rec.Script))
	if rec.Partition != "" {
		fmt.Fprintf(stdout, "PARTITION=%s\n", shellQuote(rec.Partition))
	}

	if len(rec.ScriptArgs) > 0 {
		quoted := make([]string, len(rec.ScriptArgs))
		for i, a := range rec.ScriptArgs {
			quoted[i] = shellQuote(a)
		}
		fmt.Fprintf(stdout, "SCRIPT_ARGS=(%s)\n", strings.Join(quoted, " "))
	} else {
		fmt.Fprintln(stdout, "SCRIPT_ARGS=()")
	}

	fmt.Fprintf(stdout, "RESUME_LEVEL=%d\n", rec.State.CurrentLevel)
	fmt.Fprintf(stdout, "RESUME_MEMORY=%s\n", shellQuote(rec.State.CurrentMemory))
	fmt.Fprintf(stdout, "RESUME_TIME=%s\n", shellQuote(rec.State.CurrentTime))
	fmt.Fprintf(stdout, "RESUME_STATUS=%s\n", shellQuote(string(rec.State.Status)))
	fmt.Fprintf(stdout, "MAX_LEVEL=%d\n", rec.MaxLevel)

	jobIDs := make([]string, 0, len(rec.Rounds))
	for _, r := range rec.Rounds {
		jobIDs = append(jobIDs, strconv.Itoa(r.JobID))
	}
	fmt.Fprintf(stdout, "RESUME_CHAIN=%s\n", shellQuote(strings.Join(jobIDs, ",")))
	return 0
}
