package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ChamsBouzaiene/aipair/internal/bridge"
	"github.com/ChamsBouzaiene/aipair/internal/changes"
	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/history"
	"github.com/ChamsBouzaiene/aipair/internal/logging"
	"github.com/ChamsBouzaiene/aipair/internal/metrics"
	"github.com/ChamsBouzaiene/aipair/internal/patch"
	"github.com/ChamsBouzaiene/aipair/internal/prompts"
	"github.com/ChamsBouzaiene/aipair/internal/providers"
	"github.com/ChamsBouzaiene/aipair/internal/sandbox"
	"github.com/ChamsBouzaiene/aipair/internal/toolchain"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// eventBuffer bounds the orchestrator → controller channel.
const eventBuffer = 64

type runtimeEnv struct {
	cfg     *config.RunConfig
	log     *logging.Logger
	metrics *metrics.Metrics
	store   *history.Store
	orch    *engine.Orchestrator
	events  chan engine.Event
	ctrl    *bridge.Controller
	closers []io.Closer
}

func (r *runtimeEnv) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i].Close()
	}
}

// loadRunConfig merges defaults, env, flags and the config file.
func loadRunConfig(flags config.Options, configPath string) (*config.RunConfig, error) {
	var mgr *config.Manager
	if configPath != "" {
		mgr = config.NewManagerForFile(configPath)
	} else {
		var err error
		if mgr, err = config.NewManager(""); err != nil {
			return nil, err
		}
	}
	file, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	return newRunConfig(config.Resolve(flags, file))
}

// newRunConfig builds the RunConfig, falling back to the built-in system
// prompt. Empty templates are resolved per cycle by the prompt renderer.
func newRunConfig(o config.Options) (*config.RunConfig, error) {
	cfg, err := config.New(o)
	if err != nil {
		return nil, err
	}
	if cfg.SystemPrompt() != "" {
		return cfg, nil
	}
	o.SystemPrompt = prompts.DefaultRegistry().Content(prompts.IDSystem)
	o.PromptTemplate = cfg.PromptTemplate()
	o.NoIssuePromptTemplate = cfg.NoIssuePromptTemplate()
	return config.New(o)
}

// prepareRuntimeEnv wires every collaborator of the orchestrator. Logs go
// to console and to tmpDir.
func prepareRuntimeEnv(ctx context.Context, cfg *config.RunConfig, console io.Writer) (*runtimeEnv, error) {
	env := &runtimeEnv{cfg: cfg}

	log, logFile, err := logging.Setup(cfg.TmpDir(), cfg.LogLevel(), console)
	if err != nil {
		return nil, err
	}
	env.log = log
	env.closers = append(env.closers, logFile)
	log.Info(fmt.Sprintf("project root: %s, model: %s", cfg.ProjectRoot(), cfg.Model()))

	store, err := history.OpenInDir(ctx, cfg.TmpDir())
	if err != nil {
		log.Warn(fmt.Sprintf("history disabled: %v", err))
	} else {
		env.store = store
		env.closers = append(env.closers, store)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.metrics = metrics.New(reg)

	runner := sandbox.NewDefaultRunner(ctx, sandbox.DefaultConfig(log.Slog()), log.Slog())
	paths := cfg.Paths()
	router := providers.NewRouter(cfg,
		providers.WithLogger(log),
		providers.WithRetryCallback(env.metrics.RecordProviderRetry),
		providers.WithResponseCallback(func(model string, c providers.Completion) {
			env.metrics.RecordTokens(model, c.PromptTokens, c.CompletionTokens)
		}),
	)

	env.events = make(chan engine.Event, eventBuffer)
	// A nil store still gets per-cycle log files.
	recorder := history.NewRecorder(env.store, cfg.TmpDir(), log)

	env.orch, err = engine.NewOrchestrator(cfg, engine.Deps{
		Generator: router,
		Applier:   patch.NewApplier(paths.ProjectRoot, paths.TestSourceDir, paths.TmpDir, log),
		Tracker:   changes.NewTracker(paths, changes.WithBuildFilePredicate(workspace.IsBuildFile)),
		Builder:   toolchain.NewBuilder(runner, log),
		Tester:    toolchain.NewTester(runner, log),
		Prompts:   prompts.NewRenderer(paths, prompts.DefaultRegistry()),
		Logger:    log,
		Hooks: []engine.Hook{
			recorder,
			env.metrics.Hook(),
			engine.ChannelHook{Ch: env.events, Dropped: env.metrics.RecordDroppedEvent},
		},
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []bridge.Option{
		bridge.WithLogger(log),
		bridge.WithLogTail(logging.NewTail(logging.Path(cfg.TmpDir()))),
	}
	if env.store != nil {
		opts = append(opts, bridge.WithArtifactStore(env.store))
	}
	env.ctrl = bridge.NewController(cfg, env.orch, opts...)
	return env, nil
}
