package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/checkpoint"
	"github.com/danshapiro/memclimb/internal/slurm"
)

// runStatus prints the detailed human-readable status of a chain,
// including best-effort live scheduler state for each round's jobs and
// handlers. Reading the checkpoint is fatal here; scheduler queries are
// not.
func runStatus(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}

	rec, err := checkpoint.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Could not read checkpoint: %v\n", err)
		return 1
	}

	printStatus(stdout, rec, slurm.NewClient())
	return 0
}

func printStatus(w io.Writer, rec *chain.Record, client *slurm.Client) {
	ctx := context.Background()
	rule := strings.Repeat("=", 50)

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Chain Status: %s\n", rec.ChainID)
	fmt.Fprintln(w, rule)

	mode := rec.Mode
	if mode == "" {
		mode = "single"
	}
	fmt.Fprintf(w, "Mode:     %s\n", mode)
	fmt.Fprintf(w, "Script:   %s\n", rec.Script)
	if len(rec.ScriptArgs) > 0 {
		fmt.Fprintf(w, "Args:     %s\n", strings.Join(rec.ScriptArgs, " "))
	}
	if rec.ArraySpec != "" {
		fmt.Fprintf(w, "Array:    %s (%d tasks)\n", rec.ArraySpec, rec.TotalTasks)
	}
	fmt.Fprintf(w, "Created:  %s\n", rec.Created)
	fmt.Fprintf(w, "Updated:  %s\n", rec.Updated)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Status:   %s\n", rec.State.Status)
	fmt.Fprintf(w, "Level:    %d / %d\n", rec.State.CurrentLevel, rec.MaxLevel)
	fmt.Fprintf(w, "Memory:   %s\n", rec.State.CurrentMemory)
	fmt.Fprintf(w, "Time:     %s\n", rec.State.CurrentTime)

	if last := rec.LastRound(); last != nil && rec.State.Status == chain.StatusEscalating {
		escalating := last.OOMCount + last.TimeoutCount
		failed := last.FailedCount
		if failed == 0 {
			failed = rec.State.FailedCount
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures from last round:")
		if escalating > 0 {
			fmt.Fprintf(w, "  Escalating:  %d tasks (OOM: %d, TIMEOUT: %d)\n",
				escalating, last.OOMCount, last.TimeoutCount)
		}
		if failed > 0 {
			fmt.Fprintf(w, "  Not Retried: %d tasks (code errors)\n", failed)
		}
		fmt.Fprintf(w, "  Indices:     %s/indices/%s/\n", rec.TrackerBaseDir(), rec.ChainID)
	}

	if rec.State.PendingIndices != "" {
		pending := rec.State.PendingIndices
		if len(pending) > 50 {
			pending = pending[:50] + "..."
		}
		fmt.Fprintf(w, "Pending:  %s\n", pending)
	}
	fmt.Fprintln(w)

	if len(rec.Rounds) == 0 {
		fmt.Fprintln(w, "No rounds recorded yet.")
		fmt.Fprintln(w, rule)
		return
	}

	fmt.Fprintln(w, "Rounds:")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for i, r := range rec.Rounds {
		printRound(ctx, w, rec, r, i+1, client)
	}
	fmt.Fprintln(w, rule)
}

func printRound(ctx context.Context, w io.Writer, rec *chain.Record, r chain.Round, num int, client *slurm.Client) {
	isBatch := len(r.JobIDs) > 1

	jobDisplay := fmt.Sprintf("Job %d", r.JobID)
	if isBatch {
		jobDisplay = fmt.Sprintf("Jobs %d..%d (%d batches)",
			r.JobIDs[0], r.JobIDs[len(r.JobIDs)-1], len(r.JobIDs))
	}
	levelStr := fmt.Sprintf("Mem L%d: %s", r.Level, r.Memory)
	if r.Time != "" {
		levelStr += fmt.Sprintf(", Time: %s", r.Time)
	}
	fmt.Fprintf(w, "  Round %d: %s (%s)\n", num, jobDisplay, levelStr)

	taskCount := r.TaskCount()
	if taskCount > 0 {
		fmt.Fprintf(w, "           Tasks: %d\n", taskCount)
	}
	fmt.Fprintf(w, "           Status: %s\n", r.Status)

	// Handler jobs hold back-to-back dependencies on the round's jobs;
	// batch submissions only support afterany.
	failDep, okDep := "afternotok", "afterok"
	if isBatch {
		failDep, okDep = "afterany", "afterany"
	}
	if r.HandlerID > 0 {
		printHandler(ctx, w, client, "Failure Handler", r.HandlerID, failDep, "escalating...", "escalated", "all succeeded")
		printHandler(ctx, w, client, "Success Handler", r.HandlerID+1, okDep, "completing...", "all done!", "had failures")
	}

	if isBatch && r.ArraySpec != "" {
		hint := r.ArraySpec
		if len(hint) > 60 {
			hint = hint[:60] + fmt.Sprintf("... (%d chars)", len(r.ArraySpec))
		}
		fmt.Fprintf(w, "           Array Indices: %s\n", hint)
		fmt.Fprintf(w, "           Indices folder: %s/indices/%s/\n", rec.TrackerBaseDir(), rec.ChainID)
	}

	printLiveTally(ctx, w, client, r, taskCount)

	escalating := r.OOMCount + r.TimeoutCount
	if r.CompletedCount > 0 || escalating > 0 || r.FailedCount > 0 {
		var parts []string
		if r.CompletedCount > 0 {
			parts = append(parts, fmt.Sprintf("%d done", r.CompletedCount))
		}
		if escalating > 0 {
			var detail []string
			if r.OOMCount > 0 {
				detail = append(detail, fmt.Sprintf("%d OOM", r.OOMCount))
			}
			if r.TimeoutCount > 0 {
				detail = append(detail, fmt.Sprintf("%d TIMEOUT", r.TimeoutCount))
			}
			esc := fmt.Sprintf("%d escalating", escalating)
			if len(detail) > 0 {
				esc += fmt.Sprintf(" (%s)", strings.Join(detail, ", "))
			}
			parts = append(parts, esc)
		}
		if r.FailedCount > 0 {
			parts = append(parts, fmt.Sprintf("%d failed (not retried)", r.FailedCount))
		}
		fmt.Fprintf(w, "           Results: %s\n", strings.Join(parts, " | "))
	}
	fmt.Fprintln(w)
}

// printHandler shows the live state of a handler job: still queued, running
// or already resolved in accounting. Every query is best-effort.
func printHandler(ctx context.Context, w io.Writer, client *slurm.Client, label string, handlerID int, depType, runningNote, completedNote, cancelledNote string) {
	state, inQueue, err := client.QueueState(ctx, handlerID)
	if err == nil && inQueue {
		switch state {
		case "PENDING":
			fmt.Fprintf(w, "           %s: Job %d - WAITING (%s)\n", label, handlerID, depType)
		case "RUNNING":
			fmt.Fprintf(w, "           %s: Job %d - RUNNING (%s)\n", label, handlerID, runningNote)
		}
		return
	}

	tasks, err := client.JobTasks(ctx, handlerID)
	if err != nil || len(tasks) == 0 {
		return
	}
	switch {
	case strings.Contains(tasks[0].State, "COMPLETED"):
		fmt.Fprintf(w, "           %s: Job %d - COMPLETED (%s)\n", label, handlerID, completedNote)
	case strings.Contains(tasks[0].State, "CANCELLED"):
		fmt.Fprintf(w, "           %s: Job %d - CANCELLED (%s)\n", label, handlerID, cancelledNote)
	}
}

// printLiveTally sums live accounting states across all of a round's jobs.
func printLiveTally(ctx context.Context, w io.Writer, client *slurm.Client, r chain.Round, taskCount int) {
	jobIDs := r.JobIDs
	if len(jobIDs) == 0 {
		jobIDs = []int{r.JobID}
	}

	var completed, oom, timeout, failed, active, processed int
	found := false
	for _, jobID := range jobIDs {
		tasks, err := client.JobTasks(ctx, jobID)
		if err != nil {
			continue
		}
		for _, t := range tasks {
			found = true
			processed++
			switch {
			case strings.Contains(t.State, "COMPLETED"):
				completed++
			case strings.Contains(t.State, "OUT_OF_MEMORY"):
				oom++
			case strings.Contains(t.State, "TIMEOUT"):
				timeout++
			case strings.Contains(t.State, "FAILED") && !strings.Contains(t.State, "NODE_FAIL"):
				failed++
			case strings.Contains(t.State, "RUNNING"), strings.Contains(t.State, "PENDING"):
				active++
			}
		}
	}
	if !found {
		return
	}

	line := fmt.Sprintf("           Current: %d done, %d OOM, %d TIMEOUT, %d FAILED, %d active",
		completed, oom, timeout, failed, active)
	if remaining := taskCount - processed; taskCount > 0 && remaining > 0 {
		line += fmt.Sprintf(", %d remaining", remaining)
	}
	if len(jobIDs) > 1 {
		line += fmt.Sprintf(" (from %d batches)", len(jobIDs))
	}
	fmt.Fprintln(w, line)
}

// runState prints the bare chain status string for scripting. An
// unreadable checkpoint prints UNKNOWN rather than failing, so callers can
// branch on the output unconditionally.
func runState(args []string, stdout, _ io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}
	rec, err := checkpoint.LoadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdout, "UNKNOWN")
		return 0
	}
	fmt.Fprintln(stdout, string(rec.State.Status))
	return 0
}

// runList enumerates all checkpoints in a directory.
func runList(args []string, stdout, stderr io.Writer) int {
	var dir string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--checkpoint-dir":
			v, ok := flagValue(args, &i, "--checkpoint-dir", stderr)
			if !ok {
				return 1
			}
			dir = v
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}
	if dir == "" {
		usage()
		return 1
	}

	rule := strings.Repeat("=", 40)
	fmt.Fprintln(stdout, rule)
	fmt.Fprintln(stdout, "Available Checkpoints")
	fmt.Fprintln(stdout, rule)

	store := checkpoint.NewStore(dir)
	ids, err := store.List()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	for _, id := range ids {
		rec, err := store.Load(id)
		if err != nil {
			fmt.Fprintf(stdout, "  Error reading %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(stdout, "  %s\n", rec.ChainID)
		fmt.Fprintf(stdout, "    Script:   %s\n", rec.Script)
		fmt.Fprintf(stdout, "    Status:   %s\n", rec.State.Status)
		fmt.Fprintf(stdout, "    Level:    %d (%s)\n", rec.State.CurrentLevel, rec.State.CurrentMemory)
		fmt.Fprintf(stdout, "    Attempts: %d\n", rec.State.Attempts)
		fmt.Fprintf(stdout, "    Updated:  %s\n", rec.Updated)
		fmt.Fprintln(stdout)
	}

	if len(ids) == 0 {
		fmt.Fprintln(stdout, "No checkpoints found.")
	} else {
		fmt.Fprintf(stdout, "Total: %d checkpoint(s)\n", len(ids))
	}
	return 0
}
