package main

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/aipair/internal/bridge"
)

const defaultAddr = "127.0.0.1:7878"

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		stdio bool
		addr  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive runs from an editor over stdio or a WebSocket",
		Long: `serve exposes the run controller to a host UI. With --stdio, commands are
read as JSON lines from stdin and events are written to stdout. Otherwise a
WebSocket endpoint is served at /ws, with /healthz and Prometheus /metrics.
When autoWatch is enabled, file changes start runs as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(g.options(cmd), g.configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// stdout belongs to the protocol in stdio mode.
			env, err := prepareRuntimeEnv(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = env.ctrl.Serve(ctx, env.events)
			}()

			if cfg.AutoWatch() {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := ignoreCanceled(runWatcher(ctx, env)); err != nil {
						env.log.Error("file watcher stopped: " + err.Error())
					}
				}()
			}

			if stdio {
				err = bridge.NewStdioRunner(env.ctrl, cmd.InOrStdin(), cmd.OutOrStdout(), env.log).Run(ctx)
			} else {
				err = bridge.NewServer(env.ctrl, env.metrics.Handler(), env.log).ListenAndServe(ctx, addr)
			}
			cancel()
			wg.Wait()
			return ignoreCanceled(err)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Speak the protocol over stdin/stdout")
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "Listen address for the WebSocket server")
	return cmd
}
