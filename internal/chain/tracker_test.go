package chain

import (
	"errors"
	"sort"
	"testing"
	"time"
)

// memStore keeps records in a map. Load returns a shallow copy so tests can
// detect mutations that were never saved.
type memStore struct {
	recs map[string]Record
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]Record{}}
}

func (s *memStore) Load(chainID string) (*Record, error) {
	rec, ok := s.recs[chainID]
	if !ok {
		return nil, errors.New("not found: " + chainID)
	}
	cp := rec
	cp.Rounds = append([]Round(nil), rec.Rounds...)
	return &cp, nil
}

func (s *memStore) Save(rec *Record) error {
	s.recs[rec.ChainID] = *rec
	return nil
}

func (s *memStore) List() ([]string, error) {
	var ids []string
	for id := range s.recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func testTracker() (*Tracker, *memStore) {
	store := newMemStore()
	tick := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tr := &Tracker{Store: store, Now: func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}}
	return tr, store
}

func testLevels() []Level {
	return []Level{
		{Partition: "devel", Memory: "16G", Time: "01:00:00"},
		{Partition: "devel", Memory: "32G", Time: "02:00:00"},
		{Partition: "bigmem", Memory: "64G", Time: "04:00:00"},
	}
}

func TestTracker_CreateArrayChain(t *testing.T) {
	tr, _ := testTracker()
	rec, err := tr.Create(CreateParams{
		ChainID:    "test-chain",
		Script:     "job.sh",
		ScriptArgs: []string{"--seed", "42"},
		ArraySpec:  "0-39",
		TotalTasks: 40,
		Levels:     testLevels(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rec.Mode != ModeArray || !rec.IsArray() {
		t.Fatalf("mode: %q", rec.Mode)
	}
	if rec.MaxLevel != 2 {
		t.Fatalf("max level: %d", rec.MaxLevel)
	}
	if rec.Partition != "devel" {
		t.Fatalf("partition: %q", rec.Partition)
	}
	if rec.State.Status != StatusStarting {
		t.Fatalf("status: %q", rec.State.Status)
	}
	if rec.State.CurrentLevel != 0 || rec.State.CurrentMemory != "16G" || rec.State.CurrentTime != "01:00:00" {
		t.Fatalf("initial tier: %+v", rec.State)
	}
	if rec.State.PendingIndices != "0-39" {
		t.Fatalf("pending: %q", rec.State.PendingIndices)
	}
}

func TestTracker_CreateOverwritesExisting(t *testing.T) {
	tr, store := testTracker()
	if _, err := tr.Create(CreateParams{ChainID: "c", Script: "a.sh", Levels: testLevels()}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := tr.MarkFailed("c", "", ReasonLevel); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	// Re-creating a terminal chain resets it without complaint.
	if _, err := tr.Create(CreateParams{ChainID: "c", Script: "b.sh", Levels: testLevels()}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	rec, err := store.Load("c")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Script != "b.sh" || rec.State.Status != StatusStarting || len(rec.Rounds) != 0 {
		t.Fatalf("not reset: %+v", rec)
	}
}

func TestTracker_CreateValidation(t *testing.T) {
	tr, _ := testTracker()
	if _, err := tr.Create(CreateParams{Script: "a.sh", Levels: testLevels()}); err == nil {
		t.Fatalf("missing chain id accepted")
	}
	if _, err := tr.Create(CreateParams{ChainID: "c", Levels: testLevels()}); err == nil {
		t.Fatalf("missing script accepted")
	}
	if _, err := tr.Create(CreateParams{ChainID: "c", Script: "a.sh"}); err == nil {
		t.Fatalf("empty ladder accepted")
	}
}

func TestTracker_RecordRound(t *testing.T) {
	tr, store := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)

	if err := tr.RecordRound("c", []int{1001, 1002}, 1003, "0-39", 0, "16G", "01:00:00"); err != nil {
		t.Fatalf("RecordRound: %v", err)
	}

	rec, _ := store.Load("c")
	if rec.State.Status != StatusRunning {
		t.Fatalf("status: %q", rec.State.Status)
	}
	if len(rec.Rounds) != 1 {
		t.Fatalf("rounds: %d", len(rec.Rounds))
	}
	r := rec.Rounds[0]
	if r.JobID != 1001 || len(r.JobIDs) != 2 || r.HandlerID != 1003 {
		t.Fatalf("round ids: %+v", r)
	}
	if r.Status != RoundRunning || r.Memory != "16G" || r.Level != 0 {
		t.Fatalf("round: %+v", r)
	}
	if r.TaskCount() != 40 {
		t.Fatalf("task count: %d", r.TaskCount())
	}
	if r.Submitted == "" || rec.Updated == "" {
		t.Fatalf("timestamps not set")
	}
}

func TestTracker_EscalateAppendsPendingRound(t *testing.T) {
	tr, store := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)
	mustRecordRound(t, tr, "c", 1001, "0-39", 0, "16G")

	err := tr.Escalate("c", EscalateParams{
		NextLevel:      1,
		NextMemory:     "32G",
		NextTime:       "02:00:00",
		EscalateSpec:   "0-9",
		RetryJobIDs:    []int{2001},
		HandlerID:      2002,
		CompletedCount: 30,
		EscalateCount:  10,
		OOMCount:       10,
	})
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	rec, _ := store.Load("c")
	if rec.State.Status != StatusEscalating {
		t.Fatalf("status: %q", rec.State.Status)
	}
	if rec.State.CurrentLevel != 1 || rec.State.CurrentMemory != "32G" || rec.State.CurrentTime != "02:00:00" {
		t.Fatalf("tier: %+v", rec.State)
	}
	if rec.State.PendingIndices != "0-9" {
		t.Fatalf("pending: %q", rec.State.PendingIndices)
	}
	if rec.State.LastReason != ReasonOOM {
		t.Fatalf("reason: %q", rec.State.LastReason)
	}

	if len(rec.Rounds) != 2 {
		t.Fatalf("rounds: %d", len(rec.Rounds))
	}
	done := rec.Rounds[0]
	if done.Status != RoundEscalating || done.CompletedCount != 30 || done.OOMCount != 10 {
		t.Fatalf("finished round: %+v", done)
	}
	if done.EscalateIndices != "0-9" {
		t.Fatalf("escalate indices: %q", done.EscalateIndices)
	}
	next := rec.Rounds[1]
	if next.Status != RoundPending || next.JobID != 2001 || next.Level != 1 || next.Memory != "32G" {
		t.Fatalf("pending round: %+v", next)
	}
	if next.ArraySpec != "0-9" {
		t.Fatalf("pending spec: %q", next.ArraySpec)
	}
}

func TestTracker_EscalationReasons(t *testing.T) {
	cases := []struct {
		oom, timeout int
		want         Reason
	}{
		{0, 0, ReasonNone},
		{3, 0, ReasonOOM},
		{0, 2, ReasonTimeout},
		{1, 1, ReasonMixed},
	}
	for _, tc := range cases {
		if got := escalationReason(tc.oom, tc.timeout); got != tc.want {
			t.Fatalf("escalationReason(%d, %d) = %q, want %q", tc.oom, tc.timeout, got, tc.want)
		}
	}
}

func TestTracker_MarkCompleted(t *testing.T) {
	tr, store := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)
	mustRecordRound(t, tr, "c", 1001, "0-39", 0, "16G")

	if err := tr.MarkCompleted("c", 1001, 40); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	rec, _ := store.Load("c")
	if rec.State.Status != StatusCompleted || !rec.State.Status.Terminal() {
		t.Fatalf("status: %q", rec.State.Status)
	}
	if rec.State.PendingIndices != "" {
		t.Fatalf("pending not cleared: %q", rec.State.PendingIndices)
	}
	if rec.Rounds[0].Status != RoundCompleted || rec.Rounds[0].CompletedCount != 40 {
		t.Fatalf("round: %+v", rec.Rounds[0])
	}

	// A second call changes nothing and appends nothing.
	if err := tr.MarkCompleted("c", 1001, 40); err != nil {
		t.Fatalf("repeat MarkCompleted: %v", err)
	}
	rec, _ = store.Load("c")
	if len(rec.Rounds) != 1 || rec.State.Status != StatusCompleted {
		t.Fatalf("not idempotent: %+v", rec)
	}
}

func TestTracker_MarkCompletedUnknownJobFallsToLastRound(t *testing.T) {
	tr, store := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)
	mustRecordRound(t, tr, "c", 1001, "0-39", 0, "16G")

	if err := tr.MarkCompleted("c", 9999, 40); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	rec, _ := store.Load("c")
	if rec.Rounds[0].Status != RoundCompleted {
		t.Fatalf("last round not marked: %+v", rec.Rounds[0])
	}
}

func TestTracker_MarkFailed(t *testing.T) {
	cases := []struct {
		reason Reason
		want   Status
	}{
		{ReasonMemory, StatusFailedMaxMemory},
		{ReasonTime, StatusFailedMaxTime},
		{ReasonLevel, StatusFailedMaxLevel},
		{"", StatusFailedMaxLevel},
	}
	for _, tc := range cases {
		tr, store := testTracker()
		mustCreate(t, tr, "c", "0-39", 40)
		if err := tr.MarkFailed("c", "5,7", tc.reason); err != nil {
			t.Fatalf("MarkFailed(%q): %v", tc.reason, err)
		}
		rec, _ := store.Load("c")
		if rec.State.Status != tc.want {
			t.Fatalf("reason %q: status %q, want %q", tc.reason, rec.State.Status, tc.want)
		}
		if rec.State.FailedIndices != "5,7" {
			t.Fatalf("failed indices: %q", rec.State.FailedIndices)
		}
	}

	tr, _ := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)
	if err := tr.MarkFailed("c", "", "BOGUS"); err == nil {
		t.Fatalf("bogus reason accepted")
	}
}

func TestTracker_FullEscalationCycle(t *testing.T) {
	// A 40-task array: 10 tasks OOM at the first tier, the retry at the
	// second tier completes. Two rounds end to end.
	tr, store := testTracker()
	mustCreate(t, tr, "c", "0-39", 40)
	mustRecordRound(t, tr, "c", 1001, "0-39", 0, "16G")

	err := tr.Escalate("c", EscalateParams{
		NextLevel: 1, NextMemory: "32G", NextTime: "02:00:00",
		EscalateSpec: "0-9", RetryJobIDs: []int{2001}, HandlerID: 2002,
		CompletedCount: 30, EscalateCount: 10, OOMCount: 10,
	})
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if err := tr.MarkCompleted("c", 2001, 10); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	rec, _ := store.Load("c")
	if rec.State.Status != StatusCompleted {
		t.Fatalf("status: %q", rec.State.Status)
	}
	if len(rec.Rounds) != 2 {
		t.Fatalf("rounds: %d", len(rec.Rounds))
	}
	if rec.Rounds[0].Status != RoundEscalating || rec.Rounds[1].Status != RoundCompleted {
		t.Fatalf("round statuses: %q, %q", rec.Rounds[0].Status, rec.Rounds[1].Status)
	}
	if got := rec.RoundByJob(2001); got == nil || got.Level != 1 {
		t.Fatalf("RoundByJob(2001): %+v", got)
	}
}

func TestTracker_AttemptsCountSubmissions(t *testing.T) {
	tr, store := testTracker()
	mustCreate(t, tr, "test-chain", "0-9", 10)

	rec, _ := store.Load("test-chain")
	if rec.State.Attempts != 0 {
		t.Fatalf("attempts after create: %d", rec.State.Attempts)
	}

	mustRecordRound(t, tr, "test-chain", 1001, "0-9", 0, "16G")
	err := tr.Escalate("test-chain", EscalateParams{
		NextLevel:    1,
		NextMemory:   "32G",
		EscalateSpec: "3,7",
		RetryJobIDs:  []int{2001},
		OOMCount:     2,
	})
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	rec, _ = store.Load("test-chain")
	if rec.State.Attempts != 2 {
		t.Fatalf("attempts: %d, want one per submitted round", rec.State.Attempts)
	}
	if rec.State.Attempts != len(rec.Rounds) {
		t.Fatalf("attempts %d != rounds %d", rec.State.Attempts, len(rec.Rounds))
	}
}

func TestTracker_CreateFreezesTrackerBaseDir(t *testing.T) {
	tr, _ := testTracker()
	rec, err := tr.Create(CreateParams{
		ChainID:        "test-chain",
		Script:         "job.sh",
		Levels:         testLevels(),
		TrackerBaseDir: "/scratch/tracker",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.TrackerBaseDir() != "/scratch/tracker" {
		t.Fatalf("base dir: %q", rec.TrackerBaseDir())
	}

	bare := &Record{ChainID: "old"}
	if bare.TrackerBaseDir() != DefaultTrackerBase {
		t.Fatalf("fallback base dir: %q", bare.TrackerBaseDir())
	}
}

func TestTracker_MutateUnknownChain(t *testing.T) {
	tr, _ := testTracker()
	if err := tr.RecordRound("nope", []int{1}, 0, "", 0, "16G", ""); err == nil {
		t.Fatalf("unknown chain accepted")
	}
}

func mustCreate(t *testing.T, tr *Tracker, chainID, spec string, total int) {
	t.Helper()
	_, err := tr.Create(CreateParams{
		ChainID:    chainID,
		Script:     "job.sh",
		ArraySpec:  spec,
		TotalTasks: total,
		Levels:     testLevels(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func mustRecordRound(t *testing.T, tr *Tracker, chainID string, jobID int, spec string, level int, mem string) {
	t.Helper()
	if err := tr.RecordRound(chainID, []int{jobID}, jobID+1, spec, level, mem, "01:00:00"); err != nil {
		t.Fatalf("RecordRound: %v", err)
	}
}
