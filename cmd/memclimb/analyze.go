package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/classify"
	"github.com/danshapiro/memclimb/internal/escconf"
	"github.com/danshapiro/memclimb/internal/indexset"
	"github.com/danshapiro/memclimb/internal/slurm"
)

// runAnalyze classifies the terminal tasks of one or more jobs and emits
// the per-action counts and index lists as shell variables. A failed
// scheduler query degrades to empty results; the driver retries later.
func runAnalyze(args []string, stdout, stderr io.Writer) int {
	var jobIDs []int
	var configPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--job":
			n, ok := flagInt(args, &i, "--job", stderr)
			if !ok {
				return 1
			}
			jobIDs = append(jobIDs, n)
		case "--config":
			v, ok := flagValue(args, &i, "--config", stderr)
			if !ok {
				return 1
			}
			configPath = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	if len(jobIDs) == 0 {
		usage()
		return 1
	}

	rules := classify.DefaultRules()
	if configPath != "" {
		cfg, err := escconf.Load(configPath)
		if err != nil {
			// Defaults still produce a usable classification.
			fmt.Fprintf(stderr, "Warning: %v, using default state handling\n", err)
		} else {
			rules = cfg.Rules()
		}
	}

	client := slurm.NewClient()
	ctx := context.Background()
	var tasks []classify.Task
	for _, jobID := range jobIDs {
		rows, err := client.JobTasks(ctx, jobID)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
			continue
		}
		for _, row := range rows {
			tasks = append(tasks, classify.Task{
				ID:       row.TaskID,
				State:    row.State,
				ExitCode: row.ExitCode,
			})
		}
	}

	res := classify.Classify(tasks, rules)
	writeAnalysis(stdout, res)
	return 0
}

func writeAnalysis(w io.Writer, res classify.Result) {
	fmt.Fprintf(w, "TOTAL_COUNT=%d\n", res.Total)
	fmt.Fprintf(w, "COMPLETED_COUNT=%d\n", len(res.Completed))
	fmt.Fprintf(w, "OOM_COUNT=%d\n", res.OOMCount())
	fmt.Fprintf(w, "TIMEOUT_COUNT=%d\n", res.TimeoutCount())
	fmt.Fprintf(w, "OTHER_FAILED_COUNT=%d\n", len(res.NoRetry))
	fmt.Fprintf(w, "ESCALATE_COUNT=%d\n", len(res.Escalate))
	fmt.Fprintf(w, "NO_RETRY_COUNT=%d\n", len(res.NoRetry))

	fmt.Fprintf(w, "OOM_INDICES=%s\n", indexset.Format(res.OOMIndices))
	fmt.Fprintf(w, "TIMEOUT_INDICES=%s\n", indexset.Format(res.TimeoutIndices))
	fmt.Fprintf(w, "OTHER_FAILED_INDICES=%s\n", indexset.Format(res.NoRetry))
	fmt.Fprintf(w, "ESCALATE_INDICES=%s\n", indexset.Format(res.Escalate))
	fmt.Fprintf(w, "NO_RETRY_INDICES=%s\n", indexset.Format(res.NoRetry))
}
