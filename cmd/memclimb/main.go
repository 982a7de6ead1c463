// memclimb tracks and drives resubmission ladders for Slurm batch jobs:
// when tasks die from insufficient memory or wall-clock time, the driving
// script resubmits them at a higher resource tier, and this tool keeps the
// checkpointed record of what was tried, what happened and what is left.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "create":
		os.Exit(runCreate(args, false, os.Stdout, os.Stderr))
	case "create-array":
		os.Exit(runCreate(args, true, os.Stdout, os.Stderr))
	case "load-config":
		os.Exit(runLoadConfig(args, os.Stdout, os.Stderr))
	case "load":
		os.Exit(runLoad(args, os.Stdout, os.Stderr))
	case "record-round":
		os.Exit(runRecordRound(args, os.Stdout, os.Stderr))
	case "escalate":
		os.Exit(runEscalate(args, os.Stdout, os.Stderr))
	case "mark-completed":
		os.Exit(runMarkCompleted(args, os.Stdout, os.Stderr))
	case "mark-failed":
		os.Exit(runMarkFailed(args, os.Stdout, os.Stderr))
	case "analyze":
		os.Exit(runAnalyze(args, os.Stdout, os.Stderr))
	case "compress":
		os.Exit(runCompress(args, os.Stdout, os.Stderr))
	case "expand":
		os.Exit(runExpand(args, os.Stdout, os.Stderr))
	case "status":
		os.Exit(runStatus(args, os.Stdout, os.Stderr))
	case "state":
		os.Exit(runState(args, os.Stdout, os.Stderr))
	case "list":
		os.Exit(runList(args, os.Stdout, os.Stderr))
	case "report":
		os.Exit(runReport(args, os.Stdout, os.Stderr))
	case "log-action":
		os.Exit(runLogAction(args, os.Stdout, os.Stderr))
	case "update-round":
		os.Exit(runUpdateRound(args, os.Stdout, os.Stderr))
	case "save-tasks":
		os.Exit(runSaveTasks(args, os.Stdout, os.Stderr))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  memclimb create --config <file.yaml> --checkpoint-dir <dir> --script <path> [--chain-id <id>] [-- <script args...>]")
	fmt.Fprintln(os.Stderr, "  memclimb create-array --config <file.yaml> --checkpoint-dir <dir> --script <path> --array-spec <spec> --total-tasks <n> [--chain-id <id>] [-- <script args...>]")
	fmt.Fprintln(os.Stderr, "  memclimb load-config <file.yaml>")
	fmt.Fprintln(os.Stderr, "  memclimb load <checkpoint-file>")
	fmt.Fprintln(os.Stderr, "  memclimb record-round --checkpoint-dir <dir> --chain-id <id> --jobs <id[,id...]> --handler <id> --array-spec <spec> --level <n> --mem <size> [--time <limit>] [--output-pattern <p>] [--error-pattern <p>]")
	fmt.Fprintln(os.Stderr, "  memclimb escalate --checkpoint-dir <dir> --chain-id <id> --next-level <n> --next-mem <size> --indices <spec> --retry-jobs <id[,id...]> --handler <id> --completed <n> --escalate <n> [--next-time <limit>] [--oom <n>] [--timeout <n>] [--failed <n>] [--output-pattern <p>] [--error-pattern <p>]")
	fmt.Fprintln(os.Stderr, "  memclimb mark-completed --checkpoint-dir <dir> --chain-id <id> --job <id> --completed <n>")
	fmt.Fprintln(os.Stderr, "  memclimb mark-failed --checkpoint-dir <dir> --chain-id <id> --indices <spec> [--reason MEMORY|TIME|LEVEL]")
	fmt.Fprintln(os.Stderr, "  memclimb analyze --job <id> [--job <id> ...] [--config <file.yaml>]")
	fmt.Fprintln(os.Stderr, "  memclimb compress <indices>")
	fmt.Fprintln(os.Stderr, "  memclimb expand <spec>")
	fmt.Fprintln(os.Stderr, "  memclimb status <checkpoint-file>")
	fmt.Fprintln(os.Stderr, "  memclimb state <checkpoint-file>")
	fmt.Fprintln(os.Stderr, "  memclimb list --checkpoint-dir <dir>")
	fmt.Fprintln(os.Stderr, "  memclimb report (<checkpoint-file> | --all --checkpoint-dir <dir>) [--db <path>] [--detailed]")
	fmt.Fprintln(os.Stderr, "  memclimb log-action --db <path> --chain-id <id> --type <action> [--job-id <id>] [--memory-level <n>] [--time-level <n>] [--indices <spec>] [--details <json>]")
	fmt.Fprintln(os.Stderr, "  memclimb update-round --db <path> --chain-id <id> --job <id> --status <status> [--oom <n>] [--timeout <n>] [--oom-indices <spec>] [--timeout-indices <spec>]")
	fmt.Fprintln(os.Stderr, "  memclimb save-tasks --db <path> --chain-id <id> --job <id>")
}
