package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelHook_DropsIntermediateUpdatesWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	var dropped []string
	h := ChannelHook{Ch: ch, Dropped: func(kind string) { dropped = append(dropped, kind) }}

	st := NewCycleState().Snapshot()
	h.OnStateUpdate(context.Background(), st)
	h.OnStateUpdate(context.Background(), st)

	assert.Equal(t, []string{EventStateUpdate}, dropped)
	assert.Len(t, ch, 1)
}

func TestChannelHook_TerminalUpdateBlocksUntilDelivered(t *testing.T) {
	ch := make(chan Event, 1)
	h := ChannelHook{Ch: ch, Dropped: func(string) { t.Error("terminal update dropped") }}

	st := NewCycleState().Snapshot()
	h.OnStateUpdate(context.Background(), st)

	st.Phase = PhaseTerminated
	st.Outcome = OutcomeFailure
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.OnStateUpdate(context.Background(), st)
	}()

	select {
	case <-done:
		t.Fatal("terminal update returned while the channel was full")
	case <-time.After(20 * time.Millisecond):
	}

	first := <-ch
	assert.Equal(t, PhaseIdle, first.State.Phase)
	<-done
	last := <-ch
	require.NotNil(t, last.State)
	assert.Equal(t, PhaseTerminated, last.State.Phase)
	assert.Equal(t, OutcomeFailure, last.State.Outcome)
}

func TestChannelHook_TerminalUpdateGivesUpOnCancel(t *testing.T) {
	ch := make(chan Event, 1)
	ch <- Event{Kind: EventCycleStart}
	h := ChannelHook{Ch: ch}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := NewCycleState().Snapshot()
	st.Phase = PhaseTerminated
	h.OnStateUpdate(ctx, st)
	assert.Len(t, ch, 1)
}
