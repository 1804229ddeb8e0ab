package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/aipair/internal/config"
)

// ErrRunInProgress is returned when Run is called on an orchestrator that is
// already driving a run.
var ErrRunInProgress = errors.New("a run is already in progress")

// Deps are the collaborators an Orchestrator sequences.
type Deps struct {
	Generator Generator
	Applier   Applier
	Tracker   ChangeTracker
	Builder   Builder
	Tester    Tester
	Prompts   PromptRenderer // optional; falls back to AppendHints on the raw template
	Logger    Logger         // optional
	Hooks     []Hook
}

// Report summarises a finished run.
type Report struct {
	RunID       string     `json:"runId"`
	Outcome     Outcome    `json:"outcome"`
	TotalCycles int        `json:"totalCycles"` // across escalation
	Escalated   bool       `json:"escalated"`
	State       CycleState `json:"state"`
	Err         string     `json:"error,omitempty"`
}

// Orchestrator owns one CycleState and drives cycles strictly sequentially,
// applying the retry and escalation policy after each one.
type Orchestrator struct {
	cfg     *config.RunConfig
	gen     Generator
	applier Applier
	tracker ChangeTracker
	builder Builder
	tester  Tester
	prompts PromptRenderer
	log     Logger
	hooks   Hooks

	st           *CycleState
	failureHints int // hints synthesised from failures this run

	stop    atomic.Bool
	running atomic.Bool
}

// NewOrchestrator wires the collaborators for runs under cfg.
func NewOrchestrator(cfg *config.RunConfig, deps Deps) (*Orchestrator, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("orchestrator requires a run config")
	case deps.Generator == nil:
		return nil, errors.New("orchestrator requires a generator")
	case deps.Applier == nil:
		return nil, errors.New("orchestrator requires an applier")
	case deps.Tracker == nil:
		return nil, errors.New("orchestrator requires a change tracker")
	case deps.Builder == nil:
		return nil, errors.New("orchestrator requires a builder")
	case deps.Tester == nil:
		return nil, errors.New("orchestrator requires a tester")
	}
	log := deps.Logger
	if log == nil {
		log = NopLogger{}
	}
	return &Orchestrator{
		cfg:     cfg,
		gen:     deps.Generator,
		applier: deps.Applier,
		tracker: deps.Tracker,
		builder: deps.Builder,
		tester:  deps.Tester,
		prompts: deps.Prompts,
		log:     log,
		hooks:   Hooks(deps.Hooks),
		st:      NewCycleState(),
	}, nil
}

// Stop asks the current run to halt at the next cycle boundary. An in-flight
// generation, build or test call is not interrupted. A Stop that lands
// before Run has started is kept for that run; the flag clears when a run
// finishes.
func (o *Orchestrator) Stop() {
	o.stop.Store(true)
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run executes cycles until tests pass, the retry and escalation budget is
// exhausted, Stop is called, or a fatal error occurs.
//
// Parameters:
//   - ctx: Context for cancellation; sampled at cycle boundaries and passed to every collaborator
//   - seedHints: user hints added before the first cycle
//
// Returns:
//   - Report: final outcome and a snapshot of the full state
//   - error: non-nil only for environment errors and cancellation
func (o *Orchestrator) Run(ctx context.Context, seedHints ...string) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer o.running.Store(false)

	o.st.ResetState()
	o.st.ActiveModel = o.cfg.Model()
	o.failureHints = 0
	for _, h := range seedHints {
		o.st.AddHint(strings.TrimSpace(h))
	}

	runID := uuid.NewString()
	o.log.Info(fmt.Sprintf("run %s started: model=%s retries=%d escalation=%t",
		runID, o.st.ActiveModel, o.cfg.NumRetries(), o.cfg.EscalateToPremiumModel()))
	o.hooks.OnRunStart(ctx, runID, o.st.Snapshot())

	total := 0
	previousOutput := ""
	for {
		select {
		case <-ctx.Done():
			err := fmt.Errorf("execution cancelled: %w", ctx.Err())
			return o.finish(ctx, runID, total, OutcomeStopped, err), err
		default:
		}

		total++
		passed, err := o.runCycle(ctx, runID, total, previousOutput)
		if err != nil {
			o.log.Error(fmt.Sprintf("run %s aborted: %v", runID, err))
			return o.finish(ctx, runID, total, OutcomeError, err), err
		}

		o.st.IncrementGenerationCycles()
		if passed {
			o.log.Info(fmt.Sprintf("run %s succeeded after %d cycle(s)", runID, total))
			return o.finish(ctx, runID, total, OutcomeSuccess, nil), nil
		}
		if o.st.LastRunOutput != nil {
			previousOutput = *o.st.LastRunOutput
		}

		if !o.advance(ctx) {
			o.log.Warn(fmt.Sprintf("run %s failed: retry budget exhausted after %d cycle(s)", runID, total))
			return o.finish(ctx, runID, total, OutcomeFailure, nil), nil
		}
		o.hooks.OnStateUpdate(ctx, o.st.Snapshot())

		if o.stop.Load() {
			o.log.Info(fmt.Sprintf("run %s stopped by request after %d cycle(s)", runID, total))
			return o.finish(ctx, runID, total, OutcomeStopped, nil), nil
		}
	}
}

// advance applies the retry and escalation policy after a failed cycle.
// It reports whether another cycle should run.
func (o *Orchestrator) advance(ctx context.Context) bool {
	st := o.st
	switch {
	case st.GenerationCycles < o.cfg.NumRetries():
		st.ResetCycleState()
		return true
	case o.cfg.EscalateToPremiumModel() && !st.Escalated:
		from := st.ActiveModel
		st.ActiveModel = o.cfg.EscalationModel()
		st.GenerationCycles = 0
		st.Escalated = true
		st.ResetCycleState()
		o.log.Info(fmt.Sprintf("escalating from %s to %s", from, st.ActiveModel))
		o.hooks.OnEscalation(ctx, from, st.ActiveModel)
		return true
	default:
		return false
	}
}

func (o *Orchestrator) finish(ctx context.Context, runID string, total int, outcome Outcome, err error) Report {
	o.stop.Store(false)
	o.st.Phase = PhaseTerminated
	o.st.Outcome = outcome
	snap := o.st.Snapshot()
	o.hooks.OnStateUpdate(ctx, snap)

	rep := Report{
		RunID:       runID,
		Outcome:     outcome,
		TotalCycles: total,
		Escalated:   snap.Escalated,
		State:       snap,
	}
	if err != nil {
		rep.Err = err.Error()
	}
	o.hooks.OnDone(ctx, rep)
	return rep
}

// runCycle executes steps 1-5 of one cycle. It returns passed=true only when
// the tests pass; a non-nil error is fatal and the cycle is not counted.
func (o *Orchestrator) runCycle(ctx context.Context, runID string, number int, previousOutput string) (bool, error) {
	st := o.st
	model := st.ActiveModel

	st.SetCycleStartTime()
	st.Phase = PhaseCycleInFlight
	rec := CycleRecord{Number: number, Model: model, StartedAt: *st.CycleStartTime}
	art := CycleArtifacts{RunID: runID}
	o.log.Debug(fmt.Sprintf("cycle %d starting on %s with %d hint(s)", number, model, len(st.AccumulatedHints)))
	o.hooks.OnCycleStart(ctx, number, st.Snapshot())

	prompt, err := o.renderPrompt(ctx, previousOutput)
	if err != nil {
		return false, wrapWithCycle(asEnvironmentError("render prompt", err), number, model, "generate")
	}
	art.Prompt = prompt

	code, err := o.gen.GenerateCode(ctx, GenerateRequest{
		Model:        model,
		SystemPrompt: o.cfg.SystemPrompt(),
		Prompt:       prompt,
		MaxTokens:    o.cfg.MaxTokens(),
		Temperature:  o.cfg.Temperature(),
	})
	if err != nil {
		if IsEnvironmentError(err) || ctx.Err() != nil {
			return false, wrapWithCycle(err, number, model, "generate")
		}
		o.log.Warn(fmt.Sprintf("cycle %d: generation failed: %v", number, err))
		o.addFailureHint(&rec, providerHint(model, err))
		st.setLastRunOutput(err.Error())
		rec.Result = CycleProviderError
		o.endCycle(ctx, rec, art)
		return false, nil
	}
	art.Generation = code

	before, err := o.tracker.Snapshot(ctx)
	if err != nil {
		return false, wrapWithCycle(asEnvironmentError("snapshot", err), number, model, "track")
	}
	applied, applyErr := o.applier.Apply(ctx, number, code)
	if applyErr != nil && IsEnvironmentError(applyErr) {
		return false, wrapWithCycle(applyErr, number, model, "apply")
	}
	after, err := o.tracker.Snapshot(ctx)
	if err != nil {
		return false, wrapWithCycle(asEnvironmentError("snapshot", err), number, model, "track")
	}
	changes := o.tracker.Diff(before, after)
	st.recordChanges(changes)
	c := changes.Clone()
	art.Changes = &c

	if applyErr != nil {
		o.log.Warn(fmt.Sprintf("cycle %d: apply failed: %v", number, applyErr))
		o.addFailureHint(&rec, applyHint(applyErr))
		st.setLastRunOutput(applyErr.Error())
		rec.Result = CycleApplyFailed
		o.endCycle(ctx, rec, art)
		return false, nil
	}
	o.log.Info(fmt.Sprintf("cycle %d: applied %d file(s), skipped %d", number, len(applied.Written), len(applied.Skipped)))

	paths := o.cfg.Paths()
	build, err := o.builder.Build(ctx, paths)
	if err != nil {
		return false, wrapWithCycle(asEnvironmentError("build", err), number, model, "build")
	}
	st.BuildState = BuildState{CompiledSuccessfully: build.CompiledSuccessfully, LastCompileTime: stamp(build.At)}
	st.setLastRunOutput(build.Output)
	art.BuildLog = build.Output
	o.hooks.OnStateUpdate(ctx, st.Snapshot())

	if !build.CompiledSuccessfully {
		o.log.Warn(fmt.Sprintf("cycle %d: build failed", number))
		for _, h := range buildHints(build.Output) {
			o.addFailureHint(&rec, h)
		}
		rec.Result = CycleBuildFailed
		o.endCycle(ctx, rec, art)
		return false, nil
	}

	tr, err := o.tester.Test(ctx, paths)
	if err != nil {
		return false, wrapWithCycle(asEnvironmentError("test", err), number, model, "test")
	}
	st.TestResults = TestResults{
		Passed:       tr.Passed,
		TotalTests:   tr.TotalTests,
		FailedTests:  toSet(tr.FailedTests),
		PassedTests:  toSet(tr.PassedTests),
		ErroredTests: toSet(tr.ErroredTests),
		LastRunTime:  stamp(tr.At),
	}
	st.setLastRunOutput(tr.Output)
	art.TestLog = tr.Output

	if tr.Passed {
		o.log.Info(fmt.Sprintf("cycle %d: %d test(s) passed", number, tr.TotalTests))
		rec.Result = CyclePassed
		o.endCycle(ctx, rec, art)
		return true, nil
	}

	o.log.Warn(fmt.Sprintf("cycle %d: %d failed, %d errored of %d test(s)",
		number, len(tr.FailedTests), len(tr.ErroredTests), tr.TotalTests))
	for _, h := range testHints(tr) {
		o.addFailureHint(&rec, h)
	}
	rec.Result = CycleTestsFailed
	o.endCycle(ctx, rec, art)
	return false, nil
}

func (o *Orchestrator) endCycle(ctx context.Context, rec CycleRecord, art CycleArtifacts) {
	o.st.Phase = PhaseCycleEvaluated
	rec.EndedAt = time.Now()
	o.st.Cycles = append(o.st.Cycles, rec)
	o.hooks.OnCycleEnd(ctx, rec, art, o.st.Snapshot())
}

func (o *Orchestrator) addFailureHint(rec *CycleRecord, hint string) {
	if hint == "" {
		return
	}
	o.st.AddHint(hint)
	rec.Hints = append(rec.Hints, hint)
	o.failureHints++
}

func (o *Orchestrator) renderPrompt(ctx context.Context, previousOutput string) (string, error) {
	failing := o.failureHints > 0
	tmpl := o.cfg.PromptTemplate()
	if !failing && o.cfg.NoIssuePromptTemplate() != "" {
		tmpl = o.cfg.NoIssuePromptTemplate()
	}
	in := PromptInput{
		Template:       tmpl,
		Hints:          append([]string(nil), o.st.AccumulatedHints...),
		Failing:        failing,
		PreviousOutput: previousOutput,
	}
	if o.prompts == nil {
		return AppendHints(in.Template, in.Hints, in.Failing), nil
	}
	return o.prompts.Render(ctx, in)
}

// AppendHints attaches the hint history to a rendered prompt.
func AppendHints(prompt string, hints []string, failing bool) string {
	if len(hints) == 0 {
		return prompt
	}
	label := "User hints: "
	if failing {
		label = "Hints for improvement: "
	}
	return prompt + "\n\n" + label + strings.Join(hints, "; ")
}

func asEnvironmentError(op string, err error) error {
	if IsEnvironmentError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewEnvironmentError(op, err)
}

func stamp(t time.Time) *time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return &t
}

func toSet(items []string) Set {
	s := Set{}
	for _, it := range items {
		s.Add(it)
	}
	return s
}
