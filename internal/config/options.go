package config

import (
	"os"
)

// Options is the merged, not yet validated configuration. Every source
// (defaults, CLI flags, config file) produces an Options value; later sources
// win field by field through Merge.
type Options struct {
	Model                  string  `json:"model,omitempty"`
	EscalationModel        string  `json:"escalationModel,omitempty"`
	EscalateToPremiumModel *bool   `json:"escalateToPremiumModel,omitempty"`
	ProjectRoot            string  `json:"projectRoot,omitempty"`
	SrcDir                 string  `json:"srcDir,omitempty"`
	TestSourceDir          string  `json:"testSourceDir,omitempty"`
	TestDir                string  `json:"testDir,omitempty"` // CLI spelling of TestSourceDir
	TestResultsDir         string  `json:"testResultsDir,omitempty"`
	Extension              string  `json:"extension,omitempty"`
	TmpDir                 string  `json:"tmpDir,omitempty"`
	PromptsPath            string  `json:"promptsPath,omitempty"`
	LogLevel               string  `json:"logLevel,omitempty"`
	AnthropicAPIKey        string  `json:"anthropicApiKey,omitempty"`
	OpenAIAPIKey           string  `json:"openaiApiKey,omitempty"`
	GeminiAPIKey           string  `json:"geminiApiKey,omitempty"`
	NumRetries             int     `json:"numRetries,omitempty"`
	AutoWatch              *bool   `json:"autoWatch,omitempty"`
	MaxTokens              int     `json:"maxTokens,omitempty"`
	Temperature            float32 `json:"temperature,omitempty"`
	SystemPrompt           string  `json:"systemPrompt,omitempty"`
	PromptTemplate         string  `json:"promptTemplate,omitempty"`
	NoIssuePromptTemplate  string  `json:"noIssuePromptTemplate,omitempty"`
}

const (
	DefaultModel           = "gpt-4o"
	DefaultTmpDir          = "tmp"
	DefaultLogLevel        = "debug"
	DefaultExtension       = ".java"
	DefaultEscalationModel = "o1-preview"
	DefaultNumRetries      = 3
	DefaultMaxTokens       = 2000
	DefaultTemperature     = 0.7
	DefaultSrcDir          = "src/main/java"
	DefaultTestSourceDir   = "src/test/java"
	DefaultTestResultsDir  = "build/test-results/test"
)

// Defaults returns the lowest-precedence layer. The relative tmp dir
// resolves against the working directory.
func Defaults() Options {
	f := false
	return Options{
		Model:                  DefaultModel,
		TmpDir:                 DefaultTmpDir,
		LogLevel:               DefaultLogLevel,
		EscalationModel:        DefaultEscalationModel,
		EscalateToPremiumModel: &f,
		SrcDir:                 DefaultSrcDir,
		TestSourceDir:          DefaultTestSourceDir,
		TestResultsDir:         DefaultTestResultsDir,
		Extension:              DefaultExtension,
		NumRetries:             DefaultNumRetries,
		AutoWatch:              &f,
		MaxTokens:              DefaultMaxTokens,
		Temperature:            DefaultTemperature,
	}
}

// Merge returns o overlaid with every non-zero field of over.
func (o Options) Merge(over Options) Options {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&o.Model, over.Model)
	str(&o.EscalationModel, over.EscalationModel)
	str(&o.ProjectRoot, over.ProjectRoot)
	str(&o.SrcDir, over.SrcDir)
	str(&o.TestSourceDir, over.TestSourceDir)
	str(&o.TestResultsDir, over.TestResultsDir)
	str(&o.Extension, over.Extension)
	str(&o.TmpDir, over.TmpDir)
	str(&o.PromptsPath, over.PromptsPath)
	str(&o.LogLevel, over.LogLevel)
	str(&o.AnthropicAPIKey, over.AnthropicAPIKey)
	str(&o.OpenAIAPIKey, over.OpenAIAPIKey)
	str(&o.GeminiAPIKey, over.GeminiAPIKey)
	str(&o.SystemPrompt, over.SystemPrompt)
	str(&o.PromptTemplate, over.PromptTemplate)
	str(&o.NoIssuePromptTemplate, over.NoIssuePromptTemplate)

	// testDir is the flag spelling; an explicit testSourceDir in the same
	// layer takes priority.
	if over.TestSourceDir == "" && over.TestDir != "" {
		o.TestSourceDir = over.TestDir
	}

	if over.EscalateToPremiumModel != nil {
		v := *over.EscalateToPremiumModel
		o.EscalateToPremiumModel = &v
	}
	if over.AutoWatch != nil {
		v := *over.AutoWatch
		o.AutoWatch = &v
	}
	if over.NumRetries != 0 {
		o.NumRetries = over.NumRetries
	}
	if over.MaxTokens != 0 {
		o.MaxTokens = over.MaxTokens
	}
	if over.Temperature != 0 {
		o.Temperature = over.Temperature
	}
	return o
}

// Env API key variables.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// FromEnv returns the API keys found in the process environment.
func FromEnv() Options {
	return Options{
		AnthropicAPIKey: os.Getenv(EnvAnthropicKey),
		OpenAIAPIKey:    os.Getenv(EnvOpenAIKey),
		GeminiAPIKey:    os.Getenv(EnvGeminiKey),
	}
}

// Resolve layers defaults < env < flags < file.
func Resolve(flags Options, file *Options) Options {
	o := Defaults().Merge(FromEnv()).Merge(flags)
	if file != nil {
		o = o.Merge(*file)
	}
	return o
}
