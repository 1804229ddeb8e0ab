package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddHint_SkipsEmptyAndKeepsOrder(t *testing.T) {
	st := NewCycleState()
	for _, h := range []string{"a", "", "b", "", "c"} {
		st.AddHint(h)
	}
	assert.Equal(t, []string{"a", "b", "c"}, st.AccumulatedHints)

	st.ClearHints()
	assert.Empty(t, st.AccumulatedHints)
}

func TestResetCycleState_PreservesHistory(t *testing.T) {
	st := NewCycleState()
	st.AddHint("h1")
	st.AddHint("h2")
	st.IncrementGenerationCycles()
	st.recordChanges(ChangeSummary{ModifiedFiles: Set{"A.java"}})
	st.setLastRunOutput("boom")
	st.BuildState.CompiledSuccessfully = true
	st.TestResults = TestResults{Passed: true, TotalTests: 4, FailedTests: Set{"x"}}

	st.ResetCycleState()

	assert.Len(t, st.AccumulatedHints, 2)
	assert.Equal(t, 1, st.GenerationCycles)
	assert.Len(t, st.ChangesPerCycle, 1)
	assert.Nil(t, st.LastRunOutput)
	assert.Equal(t, BuildState{}, st.BuildState)
	assert.Equal(t, TestResults{}, st.TestResults)
}

func TestResetState_ClearsEverything(t *testing.T) {
	st := NewCycleState()
	st.AddHint("h")
	st.IncrementGenerationCycles()
	st.recordChanges(ChangeSummary{NewFiles: Set{"B.java"}})
	st.SetCycleStartTime()
	st.Escalated = true

	st.ResetState()

	assert.Equal(t, 0, st.GenerationCycles)
	assert.Empty(t, st.AccumulatedHints)
	assert.Empty(t, st.ChangesPerCycle)
	assert.Nil(t, st.CycleStartTime)
	assert.False(t, st.Escalated)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestRecordChanges_MirrorsLatest(t *testing.T) {
	st := NewCycleState()
	st.recordChanges(ChangeSummary{NewFiles: Set{"A.java"}})
	st.recordChanges(ChangeSummary{ModifiedFiles: Set{"B.java"}})

	require.Len(t, st.ChangesPerCycle, 2)
	assert.Equal(t, Set{"B.java"}, st.CodeChanges.ModifiedFiles)
	assert.Empty(t, st.CodeChanges.NewFiles)
}

func TestSnapshot_IsIsolated(t *testing.T) {
	st := NewCycleState()
	st.AddHint("h")
	st.recordChanges(ChangeSummary{ModifiedFiles: Set{"A.java"}})
	st.setLastRunOutput("out")
	st.TestResults.FailedTests = Set{"T.a"}
	st.Cycles = append(st.Cycles, CycleRecord{Number: 1, Hints: []string{"h"}})

	snap := st.Snapshot()

	st.AddHint("later")
	st.ChangesPerCycle[0].ModifiedFiles[0] = "mutated"
	*st.LastRunOutput = "changed"
	st.TestResults.FailedTests[0] = "T.b"
	st.Cycles[0].Hints[0] = "x"

	assert.Equal(t, []string{"h"}, snap.AccumulatedHints)
	assert.Equal(t, Set{"A.java"}, snap.ChangesPerCycle[0].ModifiedFiles)
	assert.Equal(t, "out", *snap.LastRunOutput)
	assert.Equal(t, Set{"T.a"}, snap.TestResults.FailedTests)
	assert.Equal(t, []string{"h"}, snap.Cycles[0].Hints)
}

func TestSet_AddDeduplicates(t *testing.T) {
	var s Set
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.Equal(t, Set{"a", "b"}, s)
	assert.True(t, s.Contains("b"))
	assert.Equal(t, 2, s.Len())
}
