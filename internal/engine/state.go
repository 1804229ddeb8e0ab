// Package engine drives the generate → apply → build → test remediation loop.
// This file contains the per-run state model.

package engine

import (
	"time"
)

// Phase is the position of a run in the cycle state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseCycleInFlight  Phase = "cycle_in_flight"
	PhaseCycleEvaluated Phase = "cycle_evaluated"
	PhaseTerminated     Phase = "terminated"
)

// Outcome describes how a terminated run ended.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeStopped Outcome = "stopped"
	OutcomeError   Outcome = "error"
)

// Set is an insertion-ordered set of strings (file paths or test ids).
type Set []string

// Add appends v unless it is already present. Reports whether v was added.
func (s *Set) Add(v string) bool {
	if s.Contains(v) {
		return false
	}
	*s = append(*s, v)
	return true
}

// Contains reports whether v is a member of the set.
func (s Set) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// ChangeSummary records which files one cycle added, removed or modified.
type ChangeSummary struct {
	LastChangeTime *time.Time `json:"lastChangeTime,omitempty"`
	NewFiles       Set        `json:"newFiles"`
	DeletedFiles   Set        `json:"deletedFiles"`
	ModifiedFiles  Set        `json:"modifiedFiles"`
	BuildFiles     Set        `json:"buildFiles"`
}

// Empty reports whether the summary carries no file changes.
func (c ChangeSummary) Empty() bool {
	return len(c.NewFiles) == 0 && len(c.DeletedFiles) == 0 && len(c.ModifiedFiles) == 0
}

// Clone returns a deep copy.
func (c ChangeSummary) Clone() ChangeSummary {
	out := ChangeSummary{
		NewFiles:      c.NewFiles.Clone(),
		DeletedFiles:  c.DeletedFiles.Clone(),
		ModifiedFiles: c.ModifiedFiles.Clone(),
		BuildFiles:    c.BuildFiles.Clone(),
	}
	if c.LastChangeTime != nil {
		t := *c.LastChangeTime
		out.LastChangeTime = &t
	}
	return out
}

// TestResults is the outcome of the most recent test run.
type TestResults struct {
	Passed       bool       `json:"passed"`
	TotalTests   int        `json:"totalTests"`
	FailedTests  Set        `json:"failedTests"`
	PassedTests  Set        `json:"passedTests"`
	ErroredTests Set        `json:"erroredTests"`
	LastRunTime  *time.Time `json:"lastRunTime,omitempty"`
}

func (t TestResults) clone() TestResults {
	out := t
	out.FailedTests = t.FailedTests.Clone()
	out.PassedTests = t.PassedTests.Clone()
	out.ErroredTests = t.ErroredTests.Clone()
	out.LastRunTime = cloneTime(t.LastRunTime)
	return out
}

// BuildState is the outcome of the most recent build.
type BuildState struct {
	CompiledSuccessfully bool       `json:"compiledSuccessfully"`
	LastCompileTime      *time.Time `json:"lastCompileTime,omitempty"`
}

// CycleResult classifies where a cycle stopped.
type CycleResult string

const (
	CycleProviderError CycleResult = "provider_error"
	CycleApplyFailed   CycleResult = "apply_failed"
	CycleBuildFailed   CycleResult = "build_failed"
	CycleTestsFailed   CycleResult = "tests_failed"
	CyclePassed        CycleResult = "passed"
)

// CycleRecord is one entry of the run timeline.
type CycleRecord struct {
	Number    int         `json:"number"` // 1-based, counted across escalation
	Model     string      `json:"model"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   time.Time   `json:"endedAt"`
	Result    CycleResult `json:"result"`
	Hints     []string    `json:"hints,omitempty"` // hints this cycle contributed
}

// CycleState is the mutable record of one run. It is owned by a single
// Orchestrator; observers only ever see copies produced by Snapshot.
type CycleState struct {
	AccumulatedHints []string        `json:"accumulatedHints"` // append-only until ClearHints
	GenerationCycles int             `json:"generationCycles"` // cycles on the active model
	ChangesPerCycle  []ChangeSummary `json:"changesPerCycle"`  // one per cycle that reached apply
	LastRunOutput    *string         `json:"lastRunOutput,omitempty"`
	TestResults      TestResults     `json:"testResults"`
	BuildState       BuildState      `json:"buildState"`
	CodeChanges      ChangeSummary   `json:"codeChanges"` // mirrors the last ChangesPerCycle entry
	CycleStartTime   *time.Time      `json:"cycleStartTime,omitempty"`

	Phase       Phase         `json:"phase"`
	Outcome     Outcome       `json:"outcome,omitempty"`
	ActiveModel string        `json:"activeModel"`
	Escalated   bool          `json:"escalated"`
	Cycles      []CycleRecord `json:"cycles"`
}

// NewCycleState returns a state in the Idle phase.
func NewCycleState() *CycleState {
	st := &CycleState{}
	st.ResetState()
	return st
}

// AddHint appends a non-empty hint. Empty hints are ignored.
func (s *CycleState) AddHint(hint string) {
	if hint == "" {
		return
	}
	s.AccumulatedHints = append(s.AccumulatedHints, hint)
}

// ClearHints empties the accumulated hints.
func (s *CycleState) ClearHints() {
	s.AccumulatedHints = []string{}
}

// IncrementGenerationCycles counts one more completed cycle attempt.
func (s *CycleState) IncrementGenerationCycles() {
	s.GenerationCycles++
}

// SetCycleStartTime stamps the start of the current cycle.
func (s *CycleState) SetCycleStartTime() {
	now := time.Now()
	s.CycleStartTime = &now
}

// ResetCycleState clears the per-cycle transient fields. Hints, counters and
// change history survive.
func (s *CycleState) ResetCycleState() {
	s.TestResults = TestResults{}
	s.BuildState = BuildState{}
	s.LastRunOutput = nil
}

// ResetState reinitializes every field, as if freshly constructed.
func (s *CycleState) ResetState() {
	*s = CycleState{
		AccumulatedHints: []string{},
		ChangesPerCycle:  []ChangeSummary{},
		Cycles:           []CycleRecord{},
		Phase:            PhaseIdle,
	}
}

func (s *CycleState) setLastRunOutput(out string) {
	s.LastRunOutput = &out
}

func (s *CycleState) recordChanges(c ChangeSummary) {
	s.ChangesPerCycle = append(s.ChangesPerCycle, c)
	s.CodeChanges = c.Clone()
}

// Snapshot returns a deep copy that shares no memory with s.
func (s *CycleState) Snapshot() CycleState {
	out := *s
	out.AccumulatedHints = append([]string{}, s.AccumulatedHints...)
	out.ChangesPerCycle = make([]ChangeSummary, len(s.ChangesPerCycle))
	for i, c := range s.ChangesPerCycle {
		out.ChangesPerCycle[i] = c.Clone()
	}
	if s.LastRunOutput != nil {
		v := *s.LastRunOutput
		out.LastRunOutput = &v
	}
	out.TestResults = s.TestResults.clone()
	out.BuildState.LastCompileTime = cloneTime(s.BuildState.LastCompileTime)
	out.CodeChanges = s.CodeChanges.Clone()
	out.CycleStartTime = cloneTime(s.CycleStartTime)
	out.Cycles = make([]CycleRecord, len(s.Cycles))
	for i, r := range s.Cycles {
		r.Hints = append([]string(nil), r.Hints...)
		out.Cycles[i] = r
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
