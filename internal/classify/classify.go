// Package classify turns raw per-task scheduler states and exit codes into
// retry decisions for the escalation engine.
package classify

import (
	"sort"
	"strings"
)

// Action is the retry decision for one task.
type Action string

const (
	ActionComplete Action = "complete"
	ActionEscalate Action = "escalate"
	ActionNoRetry  Action = "no_retry"
)

// FailureKind tags the failure flavor for reporting. It is derived from the
// raw state independently of the action decision.
type FailureKind string

const (
	KindNone    FailureKind = "NONE"
	KindOOM     FailureKind = "OOM"
	KindTimeout FailureKind = "TIMEOUT"
	KindOther   FailureKind = "OTHER"
)

// Rule maps a scheduler-state substring to an action. Rules are matched in
// order; the first substring found in the raw state wins. Order is part of
// the contract, so rules are a slice, never a map.
type Rule struct {
	Pattern string
	Action  Action
}

// Rules configures the classifier: an ordered state-substring rule list
// plus an exit-code override map consulted before the state rules.
type Rules struct {
	States    []Rule
	ExitCodes map[int]Action
}

// DefaultRules returns the built-in rule table used when the caller
// supplies no configuration. 137 is the kernel OOM-killer exit code; Slurm
// reports those tasks as FAILED rather than OUT_OF_MEMORY.
func DefaultRules() Rules {
	return Rules{
		States: []Rule{
			{Pattern: "OUT_OF_MEMORY", Action: ActionEscalate},
			{Pattern: "TIMEOUT", Action: ActionEscalate},
			{Pattern: "DEADLINE", Action: ActionEscalate},
			{Pattern: "PREEMPTED", Action: ActionEscalate},
			{Pattern: "BOOT_FAIL", Action: ActionEscalate},
			{Pattern: "NODE_FAIL", Action: ActionEscalate},
			{Pattern: "FAILED", Action: ActionNoRetry},
			{Pattern: "CANCELLED", Action: ActionNoRetry},
		},
		ExitCodes: map[int]Action{137: ActionEscalate},
	}
}

// Empty reports whether no state rules are configured.
func (r Rules) Empty() bool {
	return len(r.States) == 0
}

// Task is one scheduler-reported terminal task record.
type Task struct {
	ID       int
	State    string
	ExitCode int
}

// Outcome is the classifier's verdict for one task.
type Outcome struct {
	Task   Task
	Action Action
	Kind   FailureKind
}

// Result partitions a round's tasks by action and carries the OOM/TIMEOUT
// sub-tallies used for reporting.
type Result struct {
	Completed []int
	Escalate  []int
	NoRetry   []int

	OOMIndices     []int
	TimeoutIndices []int

	Total    int
	Outcomes []Outcome
}

// OOMCount returns the number of non-completed tasks whose raw state
// reported OUT_OF_MEMORY.
func (r Result) OOMCount() int { return len(r.OOMIndices) }

// TimeoutCount returns the number of non-completed tasks whose raw state
// reported TIMEOUT.
func (r Result) TimeoutCount() int { return len(r.TimeoutIndices) }

// Classify partitions tasks into completed / escalate / no-retry. A state
// containing COMPLETED always completes, regardless of exit code. For the
// rest, an exit-code override wins outright; otherwise the first matching
// state-substring rule decides, defaulting to no-retry when nothing
// matches. Pure function: no scheduler access, no side effects.
func Classify(tasks []Task, rules Rules) Result {
	if rules.Empty() {
		rules = DefaultRules()
	}

	res := Result{Total: len(tasks)}
	for _, task := range tasks {
		if strings.Contains(task.State, "COMPLETED") {
			res.Completed = append(res.Completed, task.ID)
			res.Outcomes = append(res.Outcomes, Outcome{Task: task, Action: ActionComplete, Kind: KindNone})
			continue
		}

		kind := KindOther
		switch {
		case strings.Contains(task.State, "OUT_OF_MEMORY"):
			kind = KindOOM
			res.OOMIndices = append(res.OOMIndices, task.ID)
		case strings.Contains(task.State, "TIMEOUT"):
			kind = KindTimeout
			res.TimeoutIndices = append(res.TimeoutIndices, task.ID)
		}

		action := ActionNoRetry
		if override, ok := rules.ExitCodes[task.ExitCode]; ok {
			action = override
		} else {
			for _, rule := range rules.States {
				if strings.Contains(task.State, rule.Pattern) {
					action = rule.Action
					break
				}
			}
		}

		if action == ActionEscalate {
			res.Escalate = append(res.Escalate, task.ID)
		} else {
			res.NoRetry = append(res.NoRetry, task.ID)
		}
		res.Outcomes = append(res.Outcomes, Outcome{Task: task, Action: action, Kind: kind})
	}

	sort.Ints(res.Completed)
	sort.Ints(res.Escalate)
	sort.Ints(res.NoRetry)
	sort.Ints(res.OOMIndices)
	sort.Ints(res.TimeoutIndices)
	return res
}
