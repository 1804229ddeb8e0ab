package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var hints []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cycles until the tests pass or the retry budget is spent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(g.options(cmd), g.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			env, err := prepareRuntimeEnv(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			printCtx, stopPrinting := context.WithCancel(ctx)
			defer stopPrinting()
			go printProgress(printCtx, cmd.ErrOrStderr(), env.events)

			rep, err := env.orch.Run(ctx, hints...)
			printReport(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			if rep.Outcome != engine.OutcomeSuccess {
				return fmt.Errorf("run ended with outcome %s", rep.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&hints, "hint", nil, "Seed hint for the first cycle (repeatable)")
	return cmd
}

// printProgress drains orchestrator events so ChannelHook never drops the
// final state, printing one line per cycle.
func printProgress(ctx context.Context, w io.Writer, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case engine.EventCycleEnd:
				data, ok := ev.Data.(engine.CycleEndData)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "cycle %d (%s): %s\n", data.Record.Number, data.Record.Model, data.Record.Result)
			case engine.EventEscalation:
				if data, ok := ev.Data.(engine.EscalationData); ok {
					fmt.Fprintf(w, "escalating from %s to %s\n", data.From, data.To)
				}
			}
		}
	}
}

func printReport(w io.Writer, rep engine.Report) {
	fmt.Fprintf(w, "run %s: %s after %d cycle(s)", rep.RunID, rep.Outcome, rep.TotalCycles)
	if rep.Escalated {
		fmt.Fprint(w, ", escalated")
	}
	tr := rep.State.TestResults
	fmt.Fprintf(w, "; %d test(s), %d failed, %d errored\n", tr.TotalTests, tr.FailedTests.Len(), tr.ErroredTests.Len())
	if rep.Err != "" {
		fmt.Fprintf(w, "error: %s\n", rep.Err)
	}
}
