package engine

import (
	"context"
)

// CycleArtifacts are the raw inputs and outputs of one cycle, kept out of
// CycleState so snapshots stay small.
type CycleArtifacts struct {
	RunID      string
	Prompt     string
	Generation string
	BuildLog   string
	TestLog    string
	Changes    *ChangeSummary // nil when the cycle never reached apply
}

// Hook observes a run. Every CycleState argument is a snapshot owned by the
// hook; implementations must not block for long.
type Hook interface {
	OnRunStart(ctx context.Context, runID string, st CycleState)
	OnCycleStart(ctx context.Context, cycle int, st CycleState)
	OnStateUpdate(ctx context.Context, st CycleState)
	OnCycleEnd(ctx context.Context, rec CycleRecord, art CycleArtifacts, st CycleState)
	OnEscalation(ctx context.Context, from, to string)
	OnDone(ctx context.Context, rep Report)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnRunStart(context.Context, string, CycleState)                      {}
func (NopHook) OnCycleStart(context.Context, int, CycleState)                       {}
func (NopHook) OnStateUpdate(context.Context, CycleState)                           {}
func (NopHook) OnCycleEnd(context.Context, CycleRecord, CycleArtifacts, CycleState) {}
func (NopHook) OnEscalation(context.Context, string, string)                        {}
func (NopHook) OnDone(context.Context, Report)                                      {}

// Hooks fans every call out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnRunStart(ctx context.Context, runID string, st CycleState) {
	for _, h := range hs {
		h.OnRunStart(ctx, runID, st)
	}
}
func (hs Hooks) OnCycleStart(ctx context.Context, cycle int, st CycleState) {
	for _, h := range hs {
		h.OnCycleStart(ctx, cycle, st)
	}
}
func (hs Hooks) OnStateUpdate(ctx context.Context, st CycleState) {
	for _, h := range hs {
		h.OnStateUpdate(ctx, st)
	}
}
func (hs Hooks) OnCycleEnd(ctx context.Context, rec CycleRecord, art CycleArtifacts, st CycleState) {
	for _, h := range hs {
		h.OnCycleEnd(ctx, rec, art, st)
	}
}
func (hs Hooks) OnEscalation(ctx context.Context, from, to string) {
	for _, h := range hs {
		h.OnEscalation(ctx, from, to)
	}
}
func (hs Hooks) OnDone(ctx context.Context, rep Report) {
	for _, h := range hs {
		h.OnDone(ctx, rep)
	}
}
