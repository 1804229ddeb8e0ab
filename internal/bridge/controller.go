// Package bridge connects editor clients to the orchestrator. A Controller
// turns protocol commands into orchestrator calls and fans state snapshots
// out to every subscribed client; the stdio and websocket transports only
// move bytes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
	"github.com/ChamsBouzaiene/aipair/internal/history"
	"github.com/ChamsBouzaiene/aipair/internal/logging"
	"github.com/ChamsBouzaiene/aipair/internal/patch"
)

// ErrNotServing is returned when a run is requested before Serve started.
var ErrNotServing = errors.New("controller is not serving")

// DefaultCooldown is how long watcher batches are ignored after a run
// ended, so the run's own file writes do not trigger the next run.
const DefaultCooldown = 2 * time.Second

// Runner is the orchestrator surface the controller drives.
type Runner interface {
	Run(ctx context.Context, seedHints ...string) (engine.Report, error)
	Stop()
}

// Sink receives events for one client. Send must not block.
type Sink interface {
	Send(ev protocol.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev protocol.Event) error

// Send implements Sink.
func (f SinkFunc) Send(ev protocol.Event) error { return f(ev) }

// ArtifactStore looks up stored cycle artifacts. *history.Store implements it.
type ArtifactStore interface {
	Artifact(ctx context.Context, runID string, cycle int, kind history.Kind) (string, error)
}

// Controller owns the single active run of one RunConfig.
type Controller struct {
	cfg      *config.RunConfig
	runner   Runner
	store    ArtifactStore
	tail     *logging.Tail
	log      engine.Logger
	cooldown time.Duration
	now      func() time.Time

	sinksMu sync.RWMutex
	sinks   map[int]Sink
	nextID  int

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	runCtx  context.Context
	active  bool
	runID   string
	state   engine.CycleState
	endedAt time.Time
	wg      sync.WaitGroup
}

// Option customises a Controller.
type Option func(*Controller)

// WithArtifactStore serves view*Log requests from the history database
// before falling back to the cycle log files.
func WithArtifactStore(s ArtifactStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithLogTail serves requestLogs from t.
func WithLogTail(t *logging.Tail) Option {
	return func(c *Controller) { c.tail = t }
}

// WithLogger sets the logger.
func WithLogger(l engine.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) { c.cooldown = d }
}

// NewController creates a controller for runs of cfg driven by runner.
func NewController(cfg *config.RunConfig, runner Runner, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		runner:   runner,
		log:      engine.NopLogger{},
		cooldown: DefaultCooldown,
		now:      time.Now,
		sinks:    map[int]Sink{},
		state:    engine.NewCycleState().Snapshot(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve pumps orchestrator events to subscribers until ctx is done, then
// waits for the active run to return. Runs started through the controller
// inherit ctx.
func (c *Controller) Serve(ctx context.Context, events <-chan engine.Event) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })

	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				<-ctx.Done()
				return nil
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev engine.Event) {
	c.mu.Lock()
	if ev.State != nil {
		c.state = *ev.State
	}
	switch ev.Kind {
	case engine.EventRunStart:
		if id, ok := ev.Data.(string); ok {
			c.runID = id
		}
	case engine.EventDone:
		if rep, ok := ev.Data.(engine.Report); ok {
			c.runID = rep.RunID
		}
	}
	runID, state := c.runID, c.state
	c.mu.Unlock()

	if esc, ok := ev.Data.(engine.EscalationData); ok {
		c.Broadcast(protocol.NewLogUpdateEvent(protocol.SourceProcess, 0,
			[]string{fmt.Sprintf("escalating from %s to %s", esc.From, esc.To)}))
	}
	if ev.State != nil {
		c.Broadcast(protocol.NewStateUpdateEvent(runID, state))
	}
}

// Ready is closed once Serve accepts runs.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Subscribe registers s for broadcasts. The returned function removes it.
func (c *Controller) Subscribe(s Sink) func() {
	c.sinksMu.Lock()
	id := c.nextID
	c.nextID++
	c.sinks[id] = s
	c.sinksMu.Unlock()

	return func() {
		c.sinksMu.Lock()
		delete(c.sinks, id)
		c.sinksMu.Unlock()
	}
}

// Broadcast sends ev to every subscriber.
func (c *Controller) Broadcast(ev protocol.Event) {
	c.sinksMu.RLock()
	defer c.sinksMu.RUnlock()
	for _, s := range c.sinks {
		if err := s.Send(ev); err != nil {
			c.log.Warn(fmt.Sprintf("bridge: %v", err))
		}
	}
}

// Active reports whether a run is in flight.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns the latest snapshot and the id of the run it belongs to.
func (c *Controller) State() (string, engine.CycleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID, c.state
}

// StartRun starts a run in the background, seeded with hints. At most one
// run is active; a second request fails with engine.ErrRunInProgress.
func (c *Controller) StartRun(hints ...string) error {
	c.mu.Lock()
	if c.runCtx == nil {
		c.mu.Unlock()
		return ErrNotServing
	}
	if c.active {
		c.mu.Unlock()
		return engine.ErrRunInProgress
	}
	c.active = true
	ctx := c.runCtx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		rep, err := c.runner.Run(ctx, hints...)

		c.mu.Lock()
		c.active = false
		c.endedAt = c.now()
		c.mu.Unlock()

		switch {
		case err != nil && ctx.Err() == nil:
			c.log.Error(fmt.Sprintf("run failed: %v", err))
			c.Broadcast(protocol.NewErrorEvent(err))
		case err == nil:
			c.log.Info(fmt.Sprintf("run %s finished: %s after %d cycle(s)", rep.RunID, rep.Outcome, rep.TotalCycles))
		}
	}()
	return nil
}

// StopRun asks the active run to halt at the next cycle boundary.
func (c *Controller) StopRun() {
	if !c.Active() {
		c.log.Debug("stop requested with no active run")
		return
	}
	c.log.Info("stop requested, halting after the current cycle")
	c.runner.Stop()
}

// OnFilesChanged is the watcher callback. A batch starts a run unless one
// is in flight or one ended within the cooldown.
func (c *Controller) OnFilesChanged(paths []string) {
	c.mu.Lock()
	busy := c.active
	cooling := !c.endedAt.IsZero() && c.now().Sub(c.endedAt) < c.cooldown
	c.mu.Unlock()

	switch {
	case busy:
		c.log.Debug(fmt.Sprintf("ignoring %d changed file(s): run in flight", len(paths)))
	case cooling:
		c.log.Debug(fmt.Sprintf("ignoring %d changed file(s): run just ended", len(paths)))
	default:
		c.log.Info(fmt.Sprintf("%d file(s) changed, starting run", len(paths)))
		if err := c.StartRun(); err != nil {
			c.log.Warn(fmt.Sprintf("failed to start run: %v", err))
		}
	}
}

// Handle executes one command. Replies go to reply only; state changes
// reach every subscriber through Serve. Failures are also reported to
// reply as an error logUpdate.
func (c *Controller) Handle(ctx context.Context, cmd protocol.Command, reply Sink) error {
	err := c.handle(ctx, cmd, reply)
	if err != nil {
		if serr := reply.Send(protocol.NewErrorEvent(err)); serr != nil {
			c.log.Warn(fmt.Sprintf("bridge: %v", serr))
		}
	}
	return err
}

func (c *Controller) handle(ctx context.Context, cmd protocol.Command, reply Sink) error {
	switch cmd := cmd.(type) {
	case protocol.StartWithHintCommand:
		return c.StartRun(cmd.Hint)
	case protocol.ViewLogCommand:
		return c.viewLog(ctx, cmd, reply)
	case protocol.ViewDiffCommand:
		return c.viewDiff(cmd, reply)
	case protocol.SimpleCommand:
		switch cmd.Type {
		case protocol.TypeStartAIPair:
			return c.StartRun()
		case protocol.TypeStopAIPair:
			c.StopRun()
			return nil
		case protocol.TypeRequestState:
			runID, st := c.State()
			if err := reply.Send(protocol.NewStateUpdateEvent(runID, st)); err != nil {
				return err
			}
			return reply.Send(protocol.NewConfigUpdateEvent(c.cfg.Public()))
		case protocol.TypeOpenSettings:
			return reply.Send(protocol.NewConfigUpdateEvent(c.cfg.Public()))
		case protocol.TypeRequestLogs:
			lines := []string{}
			if c.tail != nil {
				var err error
				if lines, err = c.tail.ReadNew(); err != nil {
					return err
				}
			}
			return reply.Send(protocol.NewLogUpdateEvent(protocol.SourceProcess, 0, lines))
		}
	}
	return fmt.Errorf("unsupported command: %s", cmd.GetType())
}

func (c *Controller) viewLog(ctx context.Context, cmd protocol.ViewLogCommand, reply Sink) error {
	kind := history.Kind(cmd.Artifact())
	content, err := c.artifact(ctx, cmd.CycleNumber, kind)
	if err != nil {
		return err
	}
	return reply.Send(protocol.NewLogUpdateEvent(string(kind), cmd.CycleNumber, splitLines(content)))
}

// artifact prefers the history database for the current run and falls
// back to the log files, which also cover earlier runs in the same tmpDir.
func (c *Controller) artifact(ctx context.Context, cycle int, kind history.Kind) (string, error) {
	runID, _ := c.State()
	if c.store != nil && runID != "" {
		out, err := c.store.Artifact(ctx, runID, cycle, kind)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, history.ErrNotFound) {
			return "", err
		}
	}
	return history.ReadLog(c.cfg.TmpDir(), cycle, kind)
}

func (c *Controller) viewDiff(cmd protocol.ViewDiffCommand, reply Sink) error {
	ch, err := patch.LoadChange(c.cfg.TmpDir(), cmd.CycleNumber, cmd.FilePath)
	if err != nil {
		return err
	}
	return reply.Send(protocol.NewDiffEvent(cmd.CycleNumber, protocol.Diff{
		FilePath: ch.Path,
		Original: ch.Original,
		Updated:  ch.Updated,
		Created:  ch.Created,
	}))
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
