package main

import (
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/aipair/internal/config"
)

// globalFlags are shared by every command. They form the flags layer of
// the config merge: defaults < env < flags < config file.
type globalFlags struct {
	configPath  string
	model       string
	projectRoot string
	extension   string
	testDir     string
	logLevel    string
	tmpDir      string
	promptsPath string
	numRetries  int
	escalate    bool
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&globalFlags{})
}

func buildRootCmd(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "aipair",
		Short: "Pair with an LLM that writes code until your tests pass",
		Long: `aipair asks a code-generation model for production code, applies it,
builds the project and runs the tests. Failures are fed back as hints until
the tests pass or the retry budget is spent, optionally escalating once to a
premium model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default: ./"+config.FileName+")")
	pf.StringVar(&g.model, "model", "", "Model used for generation (default: "+config.DefaultModel+")")
	pf.StringVar(&g.projectRoot, "projectRoot", "", "Project root (default: current directory)")
	pf.StringVar(&g.extension, "extension", "", "Source file extension (default: "+config.DefaultExtension+")")
	pf.StringVar(&g.testDir, "testDir", "", "Test source directory relative to the project root (default: "+config.DefaultTestSourceDir+")")
	pf.StringVar(&g.logLevel, "logLevel", "", "Log level: debug, info, warn or error (default: "+config.DefaultLogLevel+")")
	pf.StringVar(&g.tmpDir, "tmpDir", "", "Directory for logs, archives and history (default: ./"+config.DefaultTmpDir+")")
	pf.StringVar(&g.promptsPath, "promptsPath", "", "Directory holding prompt template files")
	pf.IntVar(&g.numRetries, "numRetries", 0, "Cycles per model before escalating or giving up")
	pf.BoolVar(&g.escalate, "escalate", false, "Escalate once to the premium model when retries run out")

	root.AddCommand(newRunCmd(g), newWatchCmd(g), newServeCmd(g))
	return root
}

// options converts the flags that were set into an Options layer.
func (g *globalFlags) options(cmd *cobra.Command) config.Options {
	o := config.Options{
		Model:       g.model,
		ProjectRoot: g.projectRoot,
		Extension:   g.extension,
		TestDir:     g.testDir,
		LogLevel:    g.logLevel,
		TmpDir:      g.tmpDir,
		PromptsPath: g.promptsPath,
		NumRetries:  g.numRetries,
	}
	if f := cmd.Flag("escalate"); f != nil && f.Changed {
		v := g.escalate
		o.EscalateToPremiumModel = &v
	}
	return o
}
