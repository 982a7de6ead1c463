// Package report renders markdown test reports from checkpoint records,
// optionally enriched with task rows from the audit database.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
)

// Options controls report depth.
type Options struct {
	// Detailed adds a per-round task breakdown from the database.
	Detailed bool
	Now      func() time.Time
}

// Write renders the report for the given chains. db may be nil; DB-backed
// sections degrade to nothing on query errors since the audit store is not
// authoritative.
func Write(ctx context.Context, w io.Writer, recs []*chain.Record, db *audit.Store, opts Options) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	fmt.Fprintln(w, "# Escalation Test Report")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Generated: %s\n", now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w)

	for _, rec := range recs {
		writeChain(ctx, w, rec, db, opts)
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w)
	}
	return nil
}

func writeChain(ctx context.Context, w io.Writer, rec *chain.Record, db *audit.Store, opts Options) {
	fmt.Fprintf(w, "## Chain: %s\n\n", rec.ChainID)

	fmt.Fprintln(w, "### Configuration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Setting | Value |")
	fmt.Fprintln(w, "|---------|-------|")
	fmt.Fprintf(w, "| Script | `%s` |\n", rec.Script)
	if len(rec.ScriptArgs) > 0 {
		fmt.Fprintf(w, "| Arguments | `%s` |\n", strings.Join(rec.ScriptArgs, " "))
	}
	if rec.ArraySpec != "" {
		fmt.Fprintf(w, "| Array | `%s` (%d tasks) |\n", rec.ArraySpec, rec.TotalTasks)
	}
	fmt.Fprintf(w, "| Partition | %s |\n", rec.Partition)
	fmt.Fprintf(w, "| Max Level | %d |\n", rec.MaxLevel)
	fmt.Fprintf(w, "| Status | **%s** |\n", rec.State.Status)
	fmt.Fprintf(w, "| Created | %s |\n", rec.Created)
	fmt.Fprintf(w, "| Updated | %s |\n", rec.Updated)
	fmt.Fprintln(w)

	if len(rec.Rounds) == 0 {
		fmt.Fprintln(w, "*No rounds recorded yet.*")
		fmt.Fprintln(w)
		return
	}

	writeRounds(w, rec)
	if db != nil {
		if opts.Detailed {
			writeTaskDetails(ctx, w, rec, db)
		} else {
			writeTaskSummary(ctx, w, rec, db)
		}
	}
	writeFailedTasks(ctx, w, rec, db)
	writeSummary(w, rec)
}

func writeRounds(w io.Writer, rec *chain.Record) {
	fmt.Fprintln(w, "### Escalation Rounds")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Round | Job ID | Handler | Memory | Tasks | Done | OOM | Timeout | Failed | Status |")
	fmt.Fprintln(w, "|-------|--------|---------|--------|-------|------|-----|---------|--------|--------|")

	for i, r := range rec.Rounds {
		jobDisplay := fmt.Sprint(r.JobID)
		if len(r.JobIDs) > 1 {
			jobDisplay = fmt.Sprintf("%d..%d", r.JobIDs[0], r.JobIDs[len(r.JobIDs)-1])
		}
		fmt.Fprintf(w, "| %d | %s | %d | %s | %d | %d | %d | %d | %d | %s |\n",
			i+1, jobDisplay, r.HandlerID, r.Memory, r.TaskCount(),
			r.CompletedCount, r.OOMCount, r.TimeoutCount, r.FailedCount, r.Status)
	}
	fmt.Fprintln(w)
}

func writeTaskSummary(ctx context.Context, w io.Writer, rec *chain.Record, db *audit.Store) {
	sum, err := db.TaskSummary(ctx, rec.ChainID)
	if err != nil || sum.Total == 0 {
		return
	}
	fmt.Fprintln(w, "### Database Task Summary")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total task records: %d\n", sum.Total)
	fmt.Fprintf(w, "- Completed: %d\n", sum.Completed)
	fmt.Fprintf(w, "- OOM: %d\n", sum.OOM)
	fmt.Fprintf(w, "- Timeout: %d\n", sum.Timeout)
	fmt.Fprintf(w, "- Failed: %d\n", sum.Failed)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "*Use `--detailed` for per-round breakdown*")
	fmt.Fprintln(w)
}

func writeTaskDetails(ctx context.Context, w io.Writer, rec *chain.Record, db *audit.Store) {
	fmt.Fprintln(w, "### Task Details (from database)")
	fmt.Fprintln(w)

	for i, r := range rec.Rounds {
		jobIDs := r.JobIDs
		if len(jobIDs) == 0 {
			jobIDs = []int{r.JobID}
		}
		fmt.Fprintf(w, "#### Round %d: %s\n\n", i+1, r.Memory)

		if dist, err := db.StatusDistribution(ctx, rec.ChainID, jobIDs); err == nil && len(dist) > 0 {
			fmt.Fprintln(w, "**Status Distribution:**")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "| Status | Count |")
			fmt.Fprintln(w, "|--------|-------|")
			for _, sc := range dist {
				fmt.Fprintf(w, "| %s | %d |\n", sc.Status, sc.Count)
			}
			fmt.Fprintln(w)
		}

		if total, minTime, maxTime, err := db.RuntimeBounds(ctx, rec.ChainID, jobIDs); err == nil && total > 0 {
			fmt.Fprintf(w, "**Runtime:** min=%s, max=%s\n\n", orNA(minTime), orNA(maxTime))
		}

		if nodes, err := db.NodeDistribution(ctx, rec.ChainID, jobIDs, 10); err == nil && len(nodes) > 0 {
			fmt.Fprintln(w, "**Node Distribution (top 10):**")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "| Node | Tasks |")
			fmt.Fprintln(w, "|------|-------|")
			for _, nc := range nodes {
				fmt.Fprintf(w, "| %s | %d |\n", nc.Node, nc.Count)
			}
			fmt.Fprintln(w)
		}
	}
}

func writeFailedTasks(ctx context.Context, w io.Writer, rec *chain.Record, db *audit.Store) {
	failed := neverRetriedCount(rec)
	failedIndices := rec.State.FailedIndices
	if failed == 0 && failedIndices == "" {
		return
	}

	fmt.Fprintln(w, "### Failed Tasks (Not Retried)")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "**%d** tasks failed with code errors and were not escalated.\n\n", failed)
	if failedIndices != "" {
		display := failedIndices
		if len(display) > 200 {
			display = display[:200] + fmt.Sprintf("... (%d chars total)", len(failedIndices))
		}
		fmt.Fprintf(w, "Failed task indices: `%s`\n\n", display)
	}

	if db == nil {
		return
	}
	rows, err := db.FailedTasks(ctx, rec.ChainID, 20)
	if err != nil || len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, "**Failed task details (first 20):**")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Task ID | Status | Exit Code | Node | Elapsed |")
	fmt.Fprintln(w, "|---------|--------|-----------|------|---------|")
	for _, t := range rows {
		fmt.Fprintf(w, "| %d | %s | %d | %s | %s |\n",
			t.TaskID, t.Status, t.ExitCode, orNA(t.Node), orNA(t.Elapsed))
	}
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, rec *chain.Record) {
	failed := neverRetriedCount(rec)
	fmt.Fprintln(w, "### Summary")
	fmt.Fprintln(w)
	switch rec.State.Status {
	case chain.StatusCompleted:
		if failed > 0 {
			fmt.Fprintf(w, "**%d** of %d tasks completed. **%d** failed (not retried).\n",
				rec.TotalTasks-failed, rec.TotalTasks, failed)
		} else {
			fmt.Fprintf(w, "All **%d** tasks completed successfully.\n", rec.TotalTasks)
		}
	case chain.StatusFailedMaxMemory, chain.StatusFailedMaxTime, chain.StatusFailedMaxLevel:
		fmt.Fprintf(w, "Chain failed with %d unrecoverable tasks.\n", failed)
	default:
		fmt.Fprintf(w, "Chain status: %s\n", rec.State.Status)
	}
	fmt.Fprintln(w)
}

// neverRetriedCount prefers the chain-level tally and falls back to summing
// per-round counts (the chain field may not be aggregated on older
// checkpoints).
func neverRetriedCount(rec *chain.Record) int {
	if rec.State.FailedCount > 0 {
		return rec.State.FailedCount
	}
	total := 0
	for _, r := range rec.Rounds {
		total += r.FailedCount
	}
	return total
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
