package classify

import (
	"reflect"
	"testing"
)

func TestClassify_Defaults(t *testing.T) {
	tasks := []Task{
		{ID: 0, State: "COMPLETED", ExitCode: 0},
		{ID: 1, State: "OUT_OF_MEMORY", ExitCode: 0},
		{ID: 2, State: "TIMEOUT", ExitCode: 0},
		{ID: 3, State: "FAILED", ExitCode: 1},
		{ID: 4, State: "CANCELLED", ExitCode: 0},
		{ID: 5, State: "NODE_FAIL", ExitCode: 0},
	}
	res := Classify(tasks, Rules{})

	if res.Total != 6 {
		t.Fatalf("total: %d", res.Total)
	}
	if !reflect.DeepEqual(res.Completed, []int{0}) {
		t.Fatalf("completed: %v", res.Completed)
	}
	if !reflect.DeepEqual(res.Escalate, []int{1, 2, 5}) {
		t.Fatalf("escalate: %v", res.Escalate)
	}
	if !reflect.DeepEqual(res.NoRetry, []int{3, 4}) {
		t.Fatalf("no retry: %v", res.NoRetry)
	}
	if res.OOMCount() != 1 || res.TimeoutCount() != 1 {
		t.Fatalf("oom=%d timeout=%d", res.OOMCount(), res.TimeoutCount())
	}
}

func TestClassify_CompletedWinsOverExitCode(t *testing.T) {
	// A COMPLETED state completes even with the OOM-killer exit code.
	res := Classify([]Task{{ID: 3, State: "COMPLETED", ExitCode: 137}}, Rules{})
	if !reflect.DeepEqual(res.Completed, []int{3}) {
		t.Fatalf("completed: %v", res.Completed)
	}
	if len(res.Escalate) != 0 {
		t.Fatalf("escalate: %v", res.Escalate)
	}
	if res.Outcomes[0].Kind != KindNone {
		t.Fatalf("kind: %q", res.Outcomes[0].Kind)
	}
}

func TestClassify_ExitCodeOverridesStateRule(t *testing.T) {
	// FAILED normally means no retry, but exit 137 is the kernel OOM kill.
	res := Classify([]Task{{ID: 7, State: "FAILED", ExitCode: 137}}, Rules{})
	if !reflect.DeepEqual(res.Escalate, []int{7}) {
		t.Fatalf("escalate: %v", res.Escalate)
	}
	// Kind stays OTHER: the raw state never said OUT_OF_MEMORY.
	if res.Outcomes[0].Kind != KindOther {
		t.Fatalf("kind: %q", res.Outcomes[0].Kind)
	}
}

func TestClassify_RuleOrderDecides(t *testing.T) {
	// Both patterns occur in the raw state; the first listed rule wins, so
	// swapping the order flips the decision.
	tasks := []Task{{ID: 1, State: "CANCELLED by 1234", ExitCode: 0}}

	first := Classify(tasks, Rules{States: []Rule{
		{Pattern: "CANCELLED", Action: ActionEscalate},
		{Pattern: "CANCEL", Action: ActionNoRetry},
	}})
	if !reflect.DeepEqual(first.Escalate, []int{1}) {
		t.Fatalf("narrow-first escalate: %v", first.Escalate)
	}

	second := Classify(tasks, Rules{States: []Rule{
		{Pattern: "CANCEL", Action: ActionNoRetry},
		{Pattern: "CANCELLED", Action: ActionEscalate},
	}})
	if !reflect.DeepEqual(second.NoRetry, []int{1}) {
		t.Fatalf("broad-first no retry: %v", second.NoRetry)
	}
}

func TestClassify_UnmatchedStateDefaultsToNoRetry(t *testing.T) {
	res := Classify([]Task{{ID: 2, State: "REVOKED", ExitCode: 0}}, Rules{})
	if !reflect.DeepEqual(res.NoRetry, []int{2}) {
		t.Fatalf("no retry: %v", res.NoRetry)
	}
	if res.Outcomes[0].Kind != KindOther {
		t.Fatalf("kind: %q", res.Outcomes[0].Kind)
	}
}

func TestClassify_KindIndependentOfAction(t *testing.T) {
	// A custom table that refuses to retry OOM still tallies it as OOM.
	res := Classify(
		[]Task{{ID: 4, State: "OUT_OF_MEMORY", ExitCode: 0}},
		Rules{States: []Rule{{Pattern: "OUT_OF_MEMORY", Action: ActionNoRetry}}},
	)
	if !reflect.DeepEqual(res.NoRetry, []int{4}) {
		t.Fatalf("no retry: %v", res.NoRetry)
	}
	if res.OOMCount() != 1 {
		t.Fatalf("oom count: %d", res.OOMCount())
	}
}

func TestClassify_SortedOutput(t *testing.T) {
	res := Classify([]Task{
		{ID: 9, State: "OUT_OF_MEMORY"},
		{ID: 1, State: "OUT_OF_MEMORY"},
		{ID: 5, State: "TIMEOUT"},
	}, Rules{})
	if !reflect.DeepEqual(res.Escalate, []int{1, 5, 9}) {
		t.Fatalf("escalate: %v", res.Escalate)
	}
	if !reflect.DeepEqual(res.OOMIndices, []int{1, 9}) {
		t.Fatalf("oom indices: %v", res.OOMIndices)
	}
}
