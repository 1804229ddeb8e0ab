package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
)

// gatedGenerator blocks its first call until gate is closed.
type gatedGenerator struct {
	gate  chan struct{}
	mu    sync.Mutex
	calls int
}

func (g *gatedGenerator) GenerateCode(ctx context.Context, _ engine.GenerateRequest) (string, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return "File: src/main/java/A.java\n```java\nclass A {}\n```", nil
}

type noopApplier struct{}

func (noopApplier) Apply(context.Context, int, string) (engine.ApplyResult, error) {
	return engine.ApplyResult{Written: []string{"src/main/java/A.java"}}, nil
}

type staticTracker struct{}

func (staticTracker) Snapshot(context.Context) (engine.TreeSnapshot, error) {
	return engine.TreeSnapshot{TakenAt: time.Now(), Files: map[string]string{}}, nil
}

func (staticTracker) Diff(_, after engine.TreeSnapshot) engine.ChangeSummary {
	return engine.ChangeSummary{}
}

type greenBuilder struct{}

func (greenBuilder) Build(context.Context, config.Paths) (engine.BuildResult, error) {
	return engine.BuildResult{CompiledSuccessfully: true, Output: "BUILD SUCCESSFUL"}, nil
}

type failingTester struct{}

func (failingTester) Test(context.Context, config.Paths) (engine.TestResult, error) {
	return engine.TestResult{TotalTests: 1, FailedTests: []string{"ATest.one"}, Output: "1 test failed"}, nil
}

func TestController_StopRightAfterStartHaltsRealRun(t *testing.T) {
	for i := 0; i < 10; i++ {
		cfg, err := config.New(config.Options{
			Model:          "gpt-4o",
			ProjectRoot:    t.TempDir(),
			TmpDir:         t.TempDir(),
			LogLevel:       "info",
			OpenAIAPIKey:   "k",
			NumRetries:     5,
			PromptTemplate: "fix it",
		})
		require.NoError(t, err)

		events := make(chan engine.Event, 64)
		gen := &gatedGenerator{gate: make(chan struct{})}
		orch, err := engine.NewOrchestrator(cfg, engine.Deps{
			Generator: gen,
			Applier:   noopApplier{},
			Tracker:   staticTracker{},
			Builder:   greenBuilder{},
			Tester:    failingTester{},
			Hooks:     []engine.Hook{engine.ChannelHook{Ch: events}},
		})
		require.NoError(t, err)

		c := NewController(cfg, orch)
		serve(t, c, events)

		final := make(chan engine.CycleState, 1)
		unsubscribe := c.Subscribe(SinkFunc(func(ev protocol.Event) error {
			if su, ok := ev.(protocol.StateUpdateEvent); ok && su.State.Phase == engine.PhaseTerminated {
				select {
				case final <- su.State:
				default:
				}
			}
			return nil
		}))

		require.NoError(t, c.StartRun())
		c.StopRun()
		close(gen.gate)

		select {
		case st := <-final:
			assert.Equal(t, engine.OutcomeStopped, st.Outcome)
			assert.Len(t, st.Cycles, 1, "run must halt after the first cycle")
		case <-time.After(5 * time.Second):
			t.Fatal("run never terminated")
		}
		require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)
		unsubscribe()
	}
}
