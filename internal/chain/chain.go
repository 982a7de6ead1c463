// Package chain holds the checkpointed data model for an escalation chain
// and the state machine that drives it across resubmission rounds.
package chain

import "github.com/danshapiro/memclimb/internal/indexset"

// Status labels the lifecycle state of a chain. COMPLETED and the
// FAILED_MAX_* values are terminal; once set they are only ever replaced by
// an explicit reset (re-creating the chain).
type Status string

const (
	StatusStarting   Status = "STARTING"
	StatusRunning    Status = "RUNNING"
	StatusEscalating Status = "ESCALATING"
	StatusCompleted  Status = "COMPLETED"

	StatusFailedMaxMemory Status = "FAILED_MAX_MEMORY"
	StatusFailedMaxTime   Status = "FAILED_MAX_TIME"
	StatusFailedMaxLevel  Status = "FAILED_MAX_LEVEL"
)

// Terminal reports whether a status admits no further escalation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailedMaxMemory, StatusFailedMaxTime, StatusFailedMaxLevel:
		return true
	}
	return false
}

// RoundStatus labels one scheduler submission cycle.
type RoundStatus string

const (
	RoundRunning    RoundStatus = "RUNNING"
	RoundCompleted  RoundStatus = "COMPLETED"
	RoundEscalating RoundStatus = "ESCALATING"
	RoundPending    RoundStatus = "PENDING"
)

// Reason classifies why the last escalation happened (or why the chain was
// finally failed).
type Reason string

const (
	ReasonNone    Reason = "NONE"
	ReasonOOM     Reason = "OOM"
	ReasonTimeout Reason = "TIMEOUT"
	ReasonMixed   Reason = "MIXED"

	// MarkFailed reasons; LEVEL means the ladder itself ran out.
	ReasonMemory Reason = "MEMORY"
	ReasonTime   Reason = "TIME"
	ReasonLevel  Reason = "LEVEL"
)

// Level is one rung of the resource ladder.
type Level struct {
	Partition string `yaml:"partition"`
	Memory    string `yaml:"mem"`
	Time      string `yaml:"time"`
}

// State is the single mutable record for a chain.
type State struct {
	CurrentLevel   int    `yaml:"current_level"`
	CurrentMemory  string `yaml:"current_memory"`
	CurrentTime    string `yaml:"current_time"`
	Attempts       int    `yaml:"attempts"`
	PendingIndices string `yaml:"pending_indices"`
	CompletedCount int    `yaml:"completed_count"`
	EscalateCount  int    `yaml:"escalate_count"`
	FailedCount    int    `yaml:"failed_count"`
	FailedIndices  string `yaml:"failed_indices,omitempty"`
	Status         Status `yaml:"status"`
	LastReason     Reason `yaml:"last_escalation_reason"`
}

// Round is one scheduler submission cycle at a fixed tier. Rounds are
// append-only history; only the status and count fields of the last round
// are touched when escalation records its outcome.
type Round struct {
	JobID     int         `yaml:"job_id"`
	JobIDs    []int       `yaml:"job_ids"`
	HandlerID int         `yaml:"handler_id"`
	ArraySpec string      `yaml:"array_spec"`
	Level     int         `yaml:"level"`
	Memory    string      `yaml:"memory"`
	Time      string      `yaml:"time,omitempty"`
	Status    RoundStatus `yaml:"status"`
	Submitted string      `yaml:"submitted"`

	CompletedCount  int    `yaml:"completed_count,omitempty"`
	OOMCount        int    `yaml:"oom_count,omitempty"`
	TimeoutCount    int    `yaml:"timeout_count,omitempty"`
	FailedCount     int    `yaml:"failed_count,omitempty"`
	EscalateIndices string `yaml:"escalate_indices,omitempty"`
}

// TaskCount derives the number of tasks this round covered from its array
// spec. Zero means a non-array round.
func (r Round) TaskCount() int {
	n, err := indexset.Count(r.ArraySpec)
	if err != nil {
		return 0
	}
	return n
}

// RecordConfig is the slice of engine configuration frozen into a
// checkpoint at creation time. Only the pieces the status displays need
// are kept; the full config is snapshotted to the audit database instead.
type RecordConfig struct {
	Tracker TrackerConfig `yaml:"tracker"`
}

// TrackerConfig pins the tracker base directory the chain was created
// under, so status hints point at the right indices folder even when the
// engine's config later moves.
type TrackerConfig struct {
	BaseDir string `yaml:"base_dir,omitempty"`
}

// DefaultTrackerBase is assumed for checkpoints written before the config
// block existed.
const DefaultTrackerBase = "/data/tracker"

// Record is the whole checkpoint for one chain: immutable identity plus the
// mutable state and the round history.
type Record struct {
	ChainID    string        `yaml:"chain_id"`
	Mode       string        `yaml:"mode,omitempty"`
	Partition  string        `yaml:"partition"`
	Script     string        `yaml:"original_script"`
	ScriptArgs []string      `yaml:"script_args"`
	ArraySpec  string        `yaml:"original_array_spec,omitempty"`
	TotalTasks int           `yaml:"total_tasks,omitempty"`
	MaxLevel   int           `yaml:"max_level"`
	Levels     []Level       `yaml:"levels,omitempty"`
	Config     *RecordConfig `yaml:"config,omitempty"`
	Created    string        `yaml:"created"`
	Updated    string        `yaml:"updated"`
	State      State         `yaml:"state"`
	Rounds     []Round       `yaml:"rounds"`
}

// TrackerBaseDir returns the tracker base directory recorded at creation,
// falling back to DefaultTrackerBase for older checkpoints.
func (r *Record) TrackerBaseDir() string {
	if r.Config != nil && r.Config.Tracker.BaseDir != "" {
		return r.Config.Tracker.BaseDir
	}
	return DefaultTrackerBase
}

// ModeArray marks a chain that fans out over array-task indices and is
// driven by handler jobs between rounds.
const ModeArray = "handler_chain"

// IsArray reports whether the chain tracks array-task indices.
func (r *Record) IsArray() bool {
	return r.Mode == ModeArray
}

// LastRound returns the most recent round, or nil when none exist.
func (r *Record) LastRound() *Round {
	if len(r.Rounds) == 0 {
		return nil
	}
	return &r.Rounds[len(r.Rounds)-1]
}

// RoundByJob returns the round whose primary job id matches, or nil.
func (r *Record) RoundByJob(jobID int) *Round {
	for i := range r.Rounds {
		if r.Rounds[i].JobID == jobID {
			return &r.Rounds[i]
		}
	}
	return nil
}

// Store is the durability mechanism for chain records. All mutation goes
// through whole-record load-mutate-save; there is no partial-field update
// primitive. Save is last-writer-wins: two overlapping operations on the
// same chain will silently lose the first writer's changes. That hazard is
// accepted; callers drive a chain strictly sequentially.
type Store interface {
	Load(chainID string) (*Record, error)
	Save(rec *Record) error
	List() ([]string, error)
}
