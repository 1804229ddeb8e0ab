package engine

import (
	"context"
)

// Event kinds emitted by ChannelHook.
const (
	EventRunStart    = "run_start"
	EventCycleStart  = "cycle_start"
	EventStateUpdate = "state_update"
	EventCycleEnd    = "cycle_end"
	EventEscalation  = "escalation"
	EventDone        = "done"
)

type Event struct {
	Kind  string
	State *CycleState // snapshot, nil for escalation events
	Data  any
}

// EscalationData is the payload of an escalation event.
type EscalationData struct {
	From string
	To   string
}

// CycleEndData is the payload of a cycle_end event.
type CycleEndData struct {
	Record    CycleRecord
	Artifacts CycleArtifacts
}

// ChannelHook bridges engine → observer channel. Intermediate events never
// block: when the channel is full they are dropped and counted, so observers
// may miss an in-flight stateUpdate. The Terminated stateUpdate and the done
// event always arrive.
type ChannelHook struct {
	Ch      chan<- Event
	Dropped func(kind string)
}

func (h ChannelHook) send(ev Event) {
	select {
	case h.Ch <- ev:
	default:
		if h.Dropped != nil {
			h.Dropped(ev.Kind)
		}
	}
}

func (h ChannelHook) OnRunStart(_ context.Context, runID string, st CycleState) {
	h.send(Event{Kind: EventRunStart, State: &st, Data: runID})
}
func (h ChannelHook) OnCycleStart(_ context.Context, cycle int, st CycleState) {
	h.send(Event{Kind: EventCycleStart, State: &st, Data: cycle})
}
func (h ChannelHook) OnStateUpdate(ctx context.Context, st CycleState) {
	ev := Event{Kind: EventStateUpdate, State: &st}
	if st.Phase == PhaseTerminated {
		h.deliver(ctx, ev)
		return
	}
	h.send(ev)
}
func (h ChannelHook) OnCycleEnd(_ context.Context, rec CycleRecord, art CycleArtifacts, st CycleState) {
	h.send(Event{Kind: EventCycleEnd, State: &st, Data: CycleEndData{Record: rec, Artifacts: art}})
}
func (h ChannelHook) OnEscalation(_ context.Context, from, to string) {
	h.send(Event{Kind: EventEscalation, Data: EscalationData{From: from, To: to}})
}

// OnDone always delivers, blocking if needed, so consumers see the final state.
func (h ChannelHook) OnDone(ctx context.Context, rep Report) {
	st := rep.State
	h.deliver(ctx, Event{Kind: EventDone, State: &st, Data: rep})
}

// deliver blocks until the event is taken or ctx ends.
func (h ChannelHook) deliver(ctx context.Context, ev Event) {
	select {
	case h.Ch <- ev:
	case <-ctx.Done():
	}
}
