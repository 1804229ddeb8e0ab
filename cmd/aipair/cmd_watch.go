package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/aipair/internal/bridge"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
	"github.com/ChamsBouzaiene/aipair/internal/watch"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start a run whenever sources or tests change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(g.options(cmd), g.configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			env, err := prepareRuntimeEnv(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			unsubscribe := env.ctrl.Subscribe(bridge.SinkFunc(func(ev protocol.Event) error {
				su, ok := ev.(protocol.StateUpdateEvent)
				if ok && su.State.Phase == engine.PhaseTerminated {
					fmt.Fprintf(out, "run %s: %s after %d cycle(s)\n", su.RunID, su.State.Outcome, len(su.State.Cycles))
				}
				return nil
			}))
			defer unsubscribe()

			serveErr := make(chan error, 1)
			go func() { serveErr <- env.ctrl.Serve(ctx, env.events) }()

			if now {
				select {
				case <-env.ctrl.Ready():
				case <-ctx.Done():
				}
				if err := env.ctrl.StartRun(); err != nil && !errors.Is(err, bridge.ErrNotServing) {
					return err
				}
			}
			err = runWatcher(ctx, env)
			cancel()
			if sErr := <-serveErr; err == nil {
				err = sErr
			}
			return ignoreCanceled(err)
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "Start a run immediately instead of waiting for a change")
	return cmd
}

// runWatcher watches the source and test trees, excluding tmpDir so the
// engine's own logs never trigger a run.
func runWatcher(ctx context.Context, env *runtimeEnv) error {
	w, err := watch.NewFileWatcher(env.cfg.ProjectRoot(),
		[]string{env.cfg.SrcDir(), env.cfg.TestSourceDir()},
		[]string{env.cfg.TmpDir()},
		env.ctrl.OnFilesChanged,
		watch.WithLogger(env.log),
	)
	if err != nil {
		return err
	}
	env.log.Info(fmt.Sprintf("watching %s and %s for changes", env.cfg.SrcDir(), env.cfg.TestSourceDir()))
	return w.Run(ctx)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
