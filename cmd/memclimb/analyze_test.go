package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danshapiro/memclimb/internal/classify"
)

func TestWriteAnalysis(t *testing.T) {
	res := classify.Classify([]classify.Task{
		{ID: 0, State: "COMPLETED"},
		{ID: 1, State: "COMPLETED"},
		{ID: 2, State: "OUT_OF_MEMORY"},
		{ID: 5, State: "OUT_OF_MEMORY"},
		{ID: 3, State: "TIMEOUT"},
		{ID: 4, State: "FAILED", ExitCode: 1},
	}, classify.Rules{})

	var buf bytes.Buffer
	writeAnalysis(&buf, res)
	out := buf.String()

	for _, want := range []string{
		"TOTAL_COUNT=6\n",
		"COMPLETED_COUNT=2\n",
		"OOM_COUNT=2\n",
		"TIMEOUT_COUNT=1\n",
		"OTHER_FAILED_COUNT=1\n",
		"ESCALATE_COUNT=3\n",
		"NO_RETRY_COUNT=1\n",
		"OOM_INDICES=2,5\n",
		"TIMEOUT_INDICES=3\n",
		"ESCALATE_INDICES=2,3,5\n",
		"NO_RETRY_INDICES=4\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
