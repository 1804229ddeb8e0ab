package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
	"github.com/ChamsBouzaiene/aipair/internal/history"
	"github.com/ChamsBouzaiene/aipair/internal/logging"
	"github.com/ChamsBouzaiene/aipair/internal/patch"
)

type fakeRunner struct {
	mu      sync.Mutex
	hints   [][]string
	release chan struct{}
	stops   atomic.Int32
	report  engine.Report
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{}), report: engine.Report{RunID: "run-1", Outcome: engine.OutcomeSuccess}}
}

func (f *fakeRunner) Run(ctx context.Context, hints ...string) (engine.Report, error) {
	f.mu.Lock()
	f.hints = append(f.hints, hints)
	f.mu.Unlock()
	select {
	case <-f.release:
	case <-ctx.Done():
		return engine.Report{}, ctx.Err()
	}
	return f.report, f.err
}

func (f *fakeRunner) Stop() { f.stops.Add(1) }

func (f *fakeRunner) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.hints...)
}

type collector struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (c *collector) Send(ev protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) all() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.events...)
}

type fakeStore struct {
	content string
	err     error
}

func (s fakeStore) Artifact(context.Context, string, int, history.Kind) (string, error) {
	return s.content, s.err
}

func testConfig(t *testing.T) *config.RunConfig {
	t.Helper()
	cfg, err := config.New(config.Options{
		Model:        "gpt-4o",
		ProjectRoot:  t.TempDir(),
		TmpDir:       t.TempDir(),
		LogLevel:     "info",
		OpenAIAPIKey: "k",
	})
	require.NoError(t, err)
	return cfg
}

// serve runs the controller until the test ends.
func serve(t *testing.T, c *Controller, events chan engine.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Serve(ctx, events)
	}()
	select {
	case <-c.Ready():
	case <-time.After(time.Second):
		t.Fatal("controller never became ready")
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestController_StartRequiresServe(t *testing.T) {
	c := NewController(testConfig(t), newFakeRunner())
	assert.ErrorIs(t, c.StartRun(), ErrNotServing)
}

func TestController_SingleActiveRun(t *testing.T) {
	runner := newFakeRunner()
	c := NewController(testConfig(t), runner)
	serve(t, c, make(chan engine.Event))

	sink := &collector{}
	require.NoError(t, c.Handle(context.Background(), protocol.StartWithHintCommand{Type: protocol.TypeStartWithHint, Hint: "use a map"}, sink))
	assert.True(t, c.Active())

	err := c.Handle(context.Background(), protocol.SimpleCommand{Type: protocol.TypeStartAIPair}, sink)
	assert.ErrorIs(t, err, engine.ErrRunInProgress)
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.SourceError, events[0].(protocol.LogUpdateEvent).Source)

	close(runner.release)
	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]string{{"use a map"}}, runner.calls())
}

func TestController_StopOnlyReachesActiveRun(t *testing.T) {
	runner := newFakeRunner()
	c := NewController(testConfig(t), runner)
	serve(t, c, make(chan engine.Event))
	stop := protocol.SimpleCommand{Type: protocol.TypeStopAIPair}

	require.NoError(t, c.Handle(context.Background(), stop, &collector{}))
	assert.Equal(t, int32(0), runner.stops.Load())

	require.NoError(t, c.StartRun())
	require.NoError(t, c.Handle(context.Background(), stop, &collector{}))
	assert.Equal(t, int32(1), runner.stops.Load())
	close(runner.release)
}

func TestController_RunErrorIsBroadcast(t *testing.T) {
	runner := newFakeRunner()
	runner.err = engine.NewEnvironmentError("build", errors.New("gradle: executable file not found"))
	c := NewController(testConfig(t), runner)
	serve(t, c, make(chan engine.Event))
	sink := &collector{}
	c.Subscribe(sink)

	require.NoError(t, c.StartRun())
	close(runner.release)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	ev := sink.all()[0].(protocol.LogUpdateEvent)
	assert.Equal(t, protocol.SourceError, ev.Source)
	assert.Contains(t, ev.Logs[0], "executable file not found")
}

func TestController_RequestStateAndSettings(t *testing.T) {
	cfg := testConfig(t)
	c := NewController(cfg, newFakeRunner())
	sink := &collector{}

	require.NoError(t, c.Handle(context.Background(), protocol.SimpleCommand{Type: protocol.TypeRequestState}, sink))
	require.NoError(t, c.Handle(context.Background(), protocol.SimpleCommand{Type: protocol.TypeOpenSettings}, sink))

	events := sink.all()
	require.Len(t, events, 3)
	state := events[0].(protocol.StateUpdateEvent)
	assert.Equal(t, engine.PhaseIdle, state.State.Phase)
	assert.Equal(t, protocol.TypeConfigUpdate, events[1].GetType())
	assert.Equal(t, cfg.Public(), events[2].(protocol.ConfigUpdateEvent).Config)
}

func TestController_BroadcastsSnapshots(t *testing.T) {
	events := make(chan engine.Event, 4)
	c := NewController(testConfig(t), newFakeRunner())
	sink := &collector{}
	unsubscribe := c.Subscribe(sink)
	serve(t, c, events)

	st := engine.NewCycleState().Snapshot()
	st.Phase = engine.PhaseCycleInFlight
	events <- engine.Event{Kind: engine.EventRunStart, State: &st, Data: "run-9"}
	events <- engine.Event{Kind: engine.EventEscalation, Data: engine.EscalationData{From: "gpt-4o", To: "o1-preview"}}

	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)
	got := sink.all()
	update := got[0].(protocol.StateUpdateEvent)
	assert.Equal(t, "run-9", update.RunID)
	assert.Equal(t, engine.PhaseCycleInFlight, update.State.Phase)
	assert.Equal(t, []string{"escalating from gpt-4o to o1-preview"}, got[1].(protocol.LogUpdateEvent).Logs)

	runID, current := c.State()
	assert.Equal(t, "run-9", runID)
	assert.Equal(t, engine.PhaseCycleInFlight, current.Phase)

	unsubscribe()
	events <- engine.Event{Kind: engine.EventStateUpdate, State: &st}
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.all(), 2)
}

func TestController_ViewLogFromFiles(t *testing.T) {
	cfg := testConfig(t)
	path := history.LogPath(cfg.TmpDir(), 2, history.KindBuild)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("error: cannot find symbol\n1 error\n"), 0644))

	c := NewController(cfg, newFakeRunner())
	sink := &collector{}
	require.NoError(t, c.Handle(context.Background(), protocol.ViewLogCommand{Type: protocol.TypeViewBuildLog, CycleNumber: 2}, sink))

	ev := sink.all()[0].(protocol.LogUpdateEvent)
	assert.Equal(t, "build_result", ev.Source)
	assert.Equal(t, 2, ev.CycleNumber)
	assert.Equal(t, []string{"error: cannot find symbol", "1 error"}, ev.Logs)
}

func TestController_ViewLogPrefersStore(t *testing.T) {
	cfg := testConfig(t)
	events := make(chan engine.Event, 1)
	c := NewController(cfg, newFakeRunner(), WithArtifactStore(fakeStore{content: "from history"}))
	serve(t, c, events)
	st := engine.NewCycleState().Snapshot()
	events <- engine.Event{Kind: engine.EventRunStart, State: &st, Data: "run-1"}
	require.Eventually(t, func() bool { id, _ := c.State(); return id == "run-1" }, time.Second, 5*time.Millisecond)

	sink := &collector{}
	require.NoError(t, c.Handle(context.Background(), protocol.ViewLogCommand{Type: protocol.TypeViewTestLog, CycleNumber: 1}, sink))
	assert.Equal(t, []string{"from history"}, sink.all()[0].(protocol.LogUpdateEvent).Logs)
}

func TestController_ViewLogMissing(t *testing.T) {
	c := NewController(testConfig(t), newFakeRunner(), WithArtifactStore(fakeStore{err: history.ErrNotFound}))
	sink := &collector{}

	err := c.Handle(context.Background(), protocol.ViewLogCommand{Type: protocol.TypeViewGenerationLog, CycleNumber: 7}, sink)
	assert.ErrorIs(t, err, history.ErrNotFound)
	assert.Equal(t, protocol.SourceError, sink.all()[0].(protocol.LogUpdateEvent).Source)
}

func TestController_ViewDiff(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(patch.ChangesDir(cfg.TmpDir(), 1), "src")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "App.java"), []byte("new"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "App.java"+patch.OrigSuffix), []byte("old"), 0644))

	c := NewController(cfg, newFakeRunner())
	sink := &collector{}
	require.NoError(t, c.Handle(context.Background(), protocol.ViewDiffCommand{Type: protocol.TypeViewDiff, CycleNumber: 1, FilePath: "src/App.java"}, sink))

	ev := sink.all()[0].(protocol.LogUpdateEvent)
	require.NotNil(t, ev.Diff)
	assert.Equal(t, protocol.Diff{FilePath: "src/App.java", Original: "old", Updated: "new"}, *ev.Diff)
}

func TestController_RequestLogs(t *testing.T) {
	cfg := testConfig(t)
	path := logging.Path(cfg.TmpDir())
	require.NoError(t, os.WriteFile(path, []byte("level=INFO msg=one\nlevel=INFO msg=two\n"), 0644))

	c := NewController(cfg, newFakeRunner(), WithLogTail(logging.NewTail(path)))
	sink := &collector{}
	req := protocol.SimpleCommand{Type: protocol.TypeRequestLogs}
	require.NoError(t, c.Handle(context.Background(), req, sink))
	require.NoError(t, c.Handle(context.Background(), req, sink))

	events := sink.all()
	assert.Equal(t, []string{"level=INFO msg=one", "level=INFO msg=two"}, events[0].(protocol.LogUpdateEvent).Logs)
	assert.Empty(t, events[1].(protocol.LogUpdateEvent).Logs)
}

func TestController_OnFilesChanged(t *testing.T) {
	runner := newFakeRunner()
	c := NewController(testConfig(t), runner, WithCooldown(time.Hour))
	serve(t, c, make(chan engine.Event))

	c.OnFilesChanged([]string{"src/App.java"})
	require.True(t, c.Active())
	c.OnFilesChanged([]string{"src/App.java"})
	close(runner.release)
	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)

	// Inside the cooldown the run's own writes are ignored.
	c.OnFilesChanged([]string{"src/App.java"})
	assert.False(t, c.Active())
	assert.Len(t, runner.calls(), 1)

	c.mu.Lock()
	c.cooldown = 0
	c.mu.Unlock()
	runner.release = make(chan struct{})
	c.OnFilesChanged([]string{"src/App.java"})
	assert.True(t, c.Active())
	assert.Len(t, runner.calls(), 2)
	close(runner.release)
}
