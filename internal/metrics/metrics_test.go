package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

func TestHook_RecordsRunLifecycle(t *testing.T) {
	m := New(nil)
	h := m.Hook()
	ctx := context.Background()

	h.OnRunStart(ctx, "run-1", engine.CycleState{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRuns))

	start := time.Now()
	h.OnCycleEnd(ctx, engine.CycleRecord{Number: 1, Model: "gpt-4o", Result: engine.CycleBuildFailed, StartedAt: start, EndedAt: start.Add(3 * time.Second)}, engine.CycleArtifacts{}, engine.CycleState{})
	h.OnEscalation(ctx, "gpt-4o", "o1-preview")
	h.OnCycleEnd(ctx, engine.CycleRecord{Number: 2, Model: "o1-preview", Result: engine.CyclePassed, StartedAt: start, EndedAt: start.Add(time.Second)}, engine.CycleArtifacts{}, engine.CycleState{})
	h.OnDone(ctx, engine.Report{Outcome: engine.OutcomeSuccess, TotalCycles: 2})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("gpt-4o", "build_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("o1-preview", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
}

func TestProviderCallbacks(t *testing.T) {
	m := New(nil)
	m.RecordProviderRetry("claude-3-5-sonnet")
	m.RecordProviderRetry("claude-3-5-sonnet")
	m.RecordTokens("claude-3-5-sonnet", 120, 0)
	m.RecordDroppedEvent(engine.EventStateUpdate)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderRetriesTotal.WithLabelValues("claude-3-5-sonnet")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("claude-3-5-sonnet", "input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedEventsTotal.WithLabelValues(engine.EventStateUpdate)))
}

func TestHandler_ServesExposition(t *testing.T) {
	m := New(nil)
	m.EscalationsTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "aipair_run_escalations_total 1")
}
