package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/prompts"
)

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "watch", "serve"})
}

func TestGlobalFlags_Options(t *testing.T) {
	g := &globalFlags{}
	root := buildRootCmd(g)
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)

	require.NoError(t, root.PersistentFlags().Parse([]string{"--model", "claude-3-5-sonnet", "--numRetries", "5", "--testDir", "tests"}))
	o := g.options(run)
	assert.Equal(t, "claude-3-5-sonnet", o.Model)
	assert.Equal(t, 5, o.NumRetries)
	assert.Equal(t, "tests", o.TestDir)
	assert.Nil(t, o.EscalateToPremiumModel, "unset bool flags must not override the config file")

	require.NoError(t, root.PersistentFlags().Parse([]string{"--escalate=false"}))
	o = g.options(run)
	require.NotNil(t, o.EscalateToPremiumModel)
	assert.False(t, *o.EscalateToPremiumModel)
}

func TestLoadRunConfig_APIKeyFromEnvIsEnough(t *testing.T) {
	t.Setenv(config.EnvOpenAIKey, "sk-env")
	t.Setenv(config.EnvAnthropicKey, "")
	t.Setenv(config.EnvGeminiKey, "")

	g := &globalFlags{}
	root := buildRootCmd(g)
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), config.FileName)
	cfg, err := loadRunConfig(g.options(run), missing)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultModel, cfg.Model())
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel())
	assert.Equal(t, config.DefaultTmpDir, filepath.Base(cfg.TmpDir()))
	assert.Equal(t, "sk-env", cfg.APIKey(config.ProviderOpenAI))
	assert.NotEmpty(t, cfg.SystemPrompt())
}

func TestNewRunConfig_DefaultsSystemPromptOnly(t *testing.T) {
	cfg, err := newRunConfig(config.Options{
		Model:        "gpt-4o",
		ProjectRoot:  t.TempDir(),
		TmpDir:       t.TempDir(),
		LogLevel:     "info",
		OpenAIAPIKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, prompts.DefaultRegistry().Content(prompts.IDSystem), cfg.SystemPrompt())
	assert.Empty(t, cfg.PromptTemplate())
	assert.Empty(t, cfg.NoIssuePromptTemplate())
}

func TestNewRunConfig_KeepsConfiguredSystemPrompt(t *testing.T) {
	cfg, err := newRunConfig(config.Options{
		Model:        "gpt-4o",
		ProjectRoot:  t.TempDir(),
		TmpDir:       t.TempDir(),
		LogLevel:     "info",
		OpenAIAPIKey: "k",
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief", cfg.SystemPrompt())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	st := engine.NewCycleState().Snapshot()
	st.TestResults.TotalTests = 4
	st.TestResults.FailedTests = engine.Set{"A.b"}
	printReport(&buf, engine.Report{RunID: "r1", Outcome: engine.OutcomeFailure, TotalCycles: 6, Escalated: true, State: st})
	assert.Equal(t, "run r1: failure after 6 cycle(s), escalated; 4 test(s), 1 failed, 0 errored\n", buf.String())
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	events := make(chan engine.Event, 2)
	events <- engine.Event{Kind: engine.EventCycleEnd, Data: engine.CycleEndData{
		Record: engine.CycleRecord{Number: 1, Model: "gpt-4o", Result: engine.CycleTestsFailed},
	}}
	events <- engine.Event{Kind: engine.EventEscalation, Data: engine.EscalationData{From: "gpt-4o", To: "o1-preview"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(ctx, &buf, events)
	}()
	require.Eventually(t, func() bool { return len(events) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, "cycle 1 (gpt-4o): tests_failed\nescalating from gpt-4o to o1-preview\n", buf.String())
}
