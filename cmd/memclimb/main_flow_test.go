package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danshapiro/memclimb/internal/checkpoint"
)

const flowConfig = `
levels:
  - partition: devel
    mem: 16G
    time: 01:00:00
  - mem: 32G
    time: 02:00:00

state_handling:
  OUT_OF_MEMORY: escalate
  TIMEOUT: escalate
  FAILED: no_retry
  exit_codes:
    137: escalate

logging:
  enabled: false
`

func writeFlowConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escalate.yaml")
	if err := os.WriteFile(path, []byte(flowConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCmd(t *testing.T, fn func([]string, io.Writer, io.Writer) int, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := fn(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestEscalationFlow_EndToEnd(t *testing.T) {
	cfgPath := writeFlowConfig(t)
	ckDir := filepath.Join(t.TempDir(), "checkpoints")

	var stdout, stderr bytes.Buffer
	code := runCreate([]string{
		"--config", cfgPath,
		"--checkpoint-dir", ckDir,
		"--chain-id", "flow-chain",
		"--script", "job.sh",
		"--array-spec", "0-39",
		"--total-tasks", "40",
		"--", "--seed", "42",
	}, true, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("create-array exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "CHAIN_ID=flow-chain\n") {
		t.Fatalf("create output:\n%s", stdout.String())
	}
	ckFile := filepath.Join(ckDir, "flow-chain.checkpoint")
	if !strings.Contains(stdout.String(), "CHECKPOINT_FILE="+ckFile+"\n") {
		t.Fatalf("create output:\n%s", stdout.String())
	}

	out, errOut, code := runCmd(t, runRecordRound,
		"--checkpoint-dir", ckDir, "--chain-id", "flow-chain",
		"--jobs", "1001,1002", "--handler", "1003",
		"--array-spec", "0-39", "--level", "0", "--mem", "16G", "--time", "01:00:00")
	if code != 0 {
		t.Fatalf("record-round exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Checkpoint updated: flow-chain") {
		t.Fatalf("record-round output: %q", out)
	}

	_, errOut, code = runCmd(t, runEscalate,
		"--checkpoint-dir", ckDir, "--chain-id", "flow-chain",
		"--next-level", "1", "--next-mem", "32G", "--next-time", "02:00:00",
		"--indices", "0-9", "--retry-jobs", "2001", "--handler", "2002",
		"--completed", "30", "--escalate", "10", "--oom", "10")
	if code != 0 {
		t.Fatalf("escalate exit %d: %s", code, errOut)
	}

	out, _, code = runCmd(t, runState, ckFile)
	if code != 0 || strings.TrimSpace(out) != "ESCALATING" {
		t.Fatalf("state after escalate: %q (exit %d)", out, code)
	}

	_, errOut, code = runCmd(t, runMarkCompleted,
		"--checkpoint-dir", ckDir, "--chain-id", "flow-chain",
		"--job", "2001", "--completed", "10")
	if code != 0 {
		t.Fatalf("mark-completed exit %d: %s", code, errOut)
	}

	out, _, _ = runCmd(t, runState, ckFile)
	if strings.TrimSpace(out) != "COMPLETED" {
		t.Fatalf("state after complete: %q", out)
	}

	rec, err := checkpoint.LoadFile(ckFile)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if len(rec.Rounds) != 2 || rec.Rounds[0].OOMCount != 10 {
		t.Fatalf("rounds: %+v", rec.Rounds)
	}

	out, _, code = runCmd(t, runLoad, ckFile)
	if code != 0 {
		t.Fatalf("load exit %d", code)
	}
	for _, want := range []string{
		"SCRIPT=job.sh\n",
		"SCRIPT_ARGS=(--seed 42)\n",
		"RESUME_LEVEL=1\n",
		"RESUME_MEMORY=32G\n",
		"RESUME_STATUS=COMPLETED\n",
		"MAX_LEVEL=1\n",
		"RESUME_CHAIN=1001,2001\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in load output:\n%s", want, out)
		}
	}
}

func TestRunRecordRound_MissingChainWarnsAndExitsZero(t *testing.T) {
	out, errOut, code := runCmd(t, runRecordRound,
		"--checkpoint-dir", t.TempDir(), "--chain-id", "ghost",
		"--jobs", "1001", "--mem", "16G")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(errOut, "Warning: Could not update checkpoint:") {
		t.Fatalf("stderr: %q", errOut)
	}
	if strings.Contains(out, "Checkpoint updated") {
		t.Fatalf("stdout: %q", out)
	}
}

func TestRunState_UnreadableIsUnknown(t *testing.T) {
	out, _, code := runCmd(t, runState, filepath.Join(t.TempDir(), "absent.checkpoint"))
	if code != 0 || strings.TrimSpace(out) != "UNKNOWN" {
		t.Fatalf("state: %q (exit %d)", out, code)
	}
}

func TestRunMarkFailed_SetsTerminalStatus(t *testing.T) {
	cfgPath := writeFlowConfig(t)
	ckDir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if code := runCreate([]string{
		"--config", cfgPath, "--checkpoint-dir", ckDir,
		"--chain-id", "fail-chain", "--script", "job.sh",
	}, false, &stdout, &stderr); code != 0 {
		t.Fatalf("create exit %d: %s", code, stderr.String())
	}

	_, errOut, code := runCmd(t, runMarkFailed,
		"--checkpoint-dir", ckDir, "--chain-id", "fail-chain",
		"--indices", "5,7", "--reason", "MEMORY")
	if code != 0 {
		t.Fatalf("mark-failed exit %d: %s", code, errOut)
	}

	out, _, _ := runCmd(t, runState, filepath.Join(ckDir, "fail-chain.checkpoint"))
	if strings.TrimSpace(out) != "FAILED_MAX_MEMORY" {
		t.Fatalf("state: %q", out)
	}
}

func TestRunLoadConfig(t *testing.T) {
	out, errOut, code := runCmd(t, runLoadConfig, writeFlowConfig(t))
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"PARTITION=devel\n",
		"MAX_LEVEL=1\n",
		"LEVELS_CONFIG=true\n",
		"LEVEL_0_MEM=16G\n",
		"LEVEL_1_PARTITION=devel\n",
		"LEVEL_1_TIME=02:00:00\n",
		"LOGGING_ENABLED=false\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRunCompressExpand(t *testing.T) {
	out, _, code := runCmd(t, runCompress, "8,18,28,38")
	if code != 0 || strings.TrimSpace(out) != "8-38:10" {
		t.Fatalf("compress: %q (exit %d)", out, code)
	}

	out, _, code = runCmd(t, runExpand, "0-4,10-20:5")
	if code != 0 || strings.TrimSpace(out) != "0,1,2,3,4,10,15,20" {
		t.Fatalf("expand: %q (exit %d)", out, code)
	}

	_, errOut, code := runCmd(t, runExpand, "5-3")
	if code != 1 || errOut == "" {
		t.Fatalf("malformed spec: exit %d, stderr %q", code, errOut)
	}
}

func TestRunList(t *testing.T) {
	cfgPath := writeFlowConfig(t)
	ckDir := t.TempDir()
	for _, id := range []string{"alpha", "beta"} {
		var stdout, stderr bytes.Buffer
		if code := runCreate([]string{
			"--config", cfgPath, "--checkpoint-dir", ckDir,
			"--chain-id", id, "--script", "job.sh",
		}, false, &stdout, &stderr); code != 0 {
			t.Fatalf("create %s: %s", id, stderr.String())
		}
	}

	out, _, code := runCmd(t, runList, "--checkpoint-dir", ckDir)
	if code != 0 {
		t.Fatalf("list exit %d", code)
	}
	for _, want := range []string{"alpha", "beta", "Total: 2 checkpoint(s)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestShellQuote(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "''"},
		{"plain", "plain"},
		{"16G", "16G"},
		{"01:00:00", "01:00:00"},
		{"/path/to/file.yaml", "/path/to/file.yaml"},
		{"has space", "'has space'"},
		{"semi;colon", "'semi;colon'"},
		{"don't", `'don'"'"'t'`},
	}
	for _, tc := range cases {
		if got := shellQuote(tc.in); got != tc.want {
			t.Fatalf("shellQuote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseJobIDs(t *testing.T) {
	ids, err := parseJobIDs("1001, 1002,1003")
	if err != nil {
		t.Fatalf("parseJobIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1001 || ids[2] != 1003 {
		t.Fatalf("ids: %v", ids)
	}
	if _, err := parseJobIDs("1001,abc"); err == nil {
		t.Fatalf("bad id accepted")
	}
}
