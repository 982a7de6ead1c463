package chain

import (
	"fmt"
	"time"
)

// Tracker applies escalation transitions to chain records through a Store.
// Every mutating operation re-reads the full persisted record, applies its
// delta and writes the whole record back.
type Tracker struct {
	Store Store
	Now   func() time.Time
}

// NewTracker wires a tracker to a store with wall-clock time.
func NewTracker(store Store) *Tracker {
	return &Tracker{Store: store, Now: time.Now}
}

func (t *Tracker) now() string {
	return t.Now().Format(time.RFC3339)
}

// CreateParams describes a new chain. ChainID is caller-assigned.
type CreateParams struct {
	ChainID    string
	Script     string
	ScriptArgs []string

	// ArraySpec and TotalTasks are set for array chains, zero otherwise.
	ArraySpec  string
	TotalTasks int

	Levels []Level

	// TrackerBaseDir is frozen into the checkpoint so displays can point
	// at the chain's indices folder. Empty means the built-in default.
	TrackerBaseDir string
}

// Create writes a fresh chain record at level 0 with status STARTING. An
// existing checkpoint with the same chain id is silently overwritten; this
// doubles as the explicit reset for a terminal chain.
func (t *Tracker) Create(p CreateParams) (*Record, error) {
	if p.ChainID == "" {
		return nil, fmt.Errorf("chain id is required")
	}
	if p.Script == "" {
		return nil, fmt.Errorf("script is required")
	}
	if len(p.Levels) == 0 {
		return nil, fmt.Errorf("at least one resource level is required")
	}

	first := p.Levels[0]
	now := t.now()
	rec := &Record{
		ChainID:    p.ChainID,
		Partition:  first.Partition,
		Script:     p.Script,
		ScriptArgs: p.ScriptArgs,
		MaxLevel:   len(p.Levels) - 1,
		Levels:     p.Levels,
		Created:    now,
		Updated:    now,
		State: State{
			CurrentLevel:  0,
			CurrentMemory: first.Memory,
			CurrentTime:   first.Time,
			Status:        StatusStarting,
			LastReason:    ReasonNone,
		},
	}
	if p.ArraySpec != "" || p.TotalTasks > 0 {
		rec.Mode = ModeArray
		rec.ArraySpec = p.ArraySpec
		rec.TotalTasks = p.TotalTasks
		rec.State.PendingIndices = p.ArraySpec
	}
	if p.TrackerBaseDir != "" {
		rec.Config = &RecordConfig{Tracker: TrackerConfig{BaseDir: p.TrackerBaseDir}}
	}

	if err := t.Store.Save(rec); err != nil {
		return nil, fmt.Errorf("create chain %s: %w", p.ChainID, err)
	}
	return rec, nil
}

// RecordRound appends a RUNNING round for a fresh scheduler submission and
// moves the chain to RUNNING. Prior rounds are never touched.
func (t *Tracker) RecordRound(chainID string, jobIDs []int, handlerID int, arraySpec string, level int, memory, timeLimit string) error {
	return t.mutate(chainID, func(rec *Record) error {
		firstJob := 0
		if len(jobIDs) > 0 {
			firstJob = jobIDs[0]
		}
		rec.State.Status = StatusRunning
		rec.State.Attempts++
		rec.Rounds = append(rec.Rounds, Round{
			JobID:     firstJob,
			JobIDs:    jobIDs,
			HandlerID: handlerID,
			ArraySpec: arraySpec,
			Level:     level,
			Memory:    memory,
			Time:      timeLimit,
			Status:    RoundRunning,
			Submitted: t.now(),
		})
		return nil
	})
}

// EscalateParams carries one round's outcome plus the retry submission that
// replaces it at the next tier.
type EscalateParams struct {
	NextLevel  int
	NextMemory string
	NextTime   string

	// EscalateSpec is the compressed set of indices being retried.
	EscalateSpec string
	RetryJobIDs  []int
	HandlerID    int

	CompletedCount int
	EscalateCount  int
	OOMCount       int
	TimeoutCount   int
	FailedCount    int
}

// Escalate records the finished round's outcome on the last round, updates
// the chain state to the next tier and appends a PENDING round for the
// retry. The caller is responsible for having checked NextLevel against the
// ladder ceiling; the engine does not refuse an out-of-range level.
func (t *Tracker) Escalate(chainID string, p EscalateParams) error {
	return t.mutate(chainID, func(rec *Record) error {
		rec.State.CurrentLevel = p.NextLevel
		rec.State.CurrentMemory = p.NextMemory
		if p.NextTime != "" {
			rec.State.CurrentTime = p.NextTime
		}
		rec.State.PendingIndices = p.EscalateSpec
		rec.State.Status = StatusEscalating
		rec.State.EscalateCount = p.EscalateCount
		rec.State.FailedCount = p.FailedCount
		rec.State.LastReason = escalationReason(p.OOMCount, p.TimeoutCount)

		if last := rec.LastRound(); last != nil {
			last.Status = RoundEscalating
			last.CompletedCount = p.CompletedCount
			last.OOMCount = p.OOMCount
			last.TimeoutCount = p.TimeoutCount
			last.FailedCount = p.FailedCount
			last.EscalateIndices = p.EscalateSpec
		}

		firstJob := 0
		if len(p.RetryJobIDs) > 0 {
			firstJob = p.RetryJobIDs[0]
		}
		rec.State.Attempts++
		rec.Rounds = append(rec.Rounds, Round{
			JobID:     firstJob,
			JobIDs:    p.RetryJobIDs,
			HandlerID: p.HandlerID,
			ArraySpec: p.EscalateSpec,
			Level:     p.NextLevel,
			Memory:    p.NextMemory,
			Time:      p.NextTime,
			Status:    RoundPending,
			Submitted: t.now(),
		})
		return nil
	})
}

// MarkCompleted sets the chain COMPLETED, clears pending indices and marks
// the round matching jobID (or the last round when none matches) as
// COMPLETED. Calling it again with the same arguments is a no-op in effect:
// no rounds are appended and the terminal state is re-asserted.
func (t *Tracker) MarkCompleted(chainID string, jobID, completedCount int) error {
	return t.mutate(chainID, func(rec *Record) error {
		rec.State.Status = StatusCompleted
		rec.State.CompletedCount = completedCount
		rec.State.PendingIndices = ""

		round := rec.RoundByJob(jobID)
		if round == nil {
			round = rec.LastRound()
		}
		if round != nil {
			round.Status = RoundCompleted
			round.CompletedCount = completedCount
		}
		return nil
	})
}

// MarkFailed sets the terminal FAILED_MAX_<reason> status and records the
// indices that will never be retried. No further escalation operations are
// expected afterwards.
func (t *Tracker) MarkFailed(chainID, failedIndices string, reason Reason) error {
	status := StatusFailedMaxLevel
	switch reason {
	case ReasonMemory:
		status = StatusFailedMaxMemory
	case ReasonTime:
		status = StatusFailedMaxTime
	case ReasonLevel, "":
		status = StatusFailedMaxLevel
	default:
		return fmt.Errorf("unknown failure reason %q", reason)
	}
	return t.mutate(chainID, func(rec *Record) error {
		rec.State.Status = status
		rec.State.FailedIndices = failedIndices
		return nil
	})
}

func (t *Tracker) mutate(chainID string, apply func(*Record) error) error {
	rec, err := t.Store.Load(chainID)
	if err != nil {
		return fmt.Errorf("load chain %s: %w", chainID, err)
	}
	if err := apply(rec); err != nil {
		return err
	}
	rec.Updated = t.now()
	if err := t.Store.Save(rec); err != nil {
		return fmt.Errorf("save chain %s: %w", chainID, err)
	}
	return nil
}

func escalationReason(oomCount, timeoutCount int) Reason {
	switch {
	case oomCount > 0 && timeoutCount > 0:
		return ReasonMixed
	case oomCount > 0:
		return ReasonOOM
	case timeoutCount > 0:
		return ReasonTimeout
	}
	return ReasonNone
}
