// Package config builds the immutable RunConfig from merged Options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Construction errors. A run never starts when one of these is returned.
var (
	ErrMissingAPIKey   = errors.New("API keys are not provided")
	ErrMissingLogLevel = errors.New("log level is not provided")
	ErrMissingTmpDir   = errors.New("tmp directory is not provided")
)

// Provider names used as API key identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Prompt files looked up under PromptsPath.
const (
	SystemPromptFile          = "system_prompt.txt"
	PromptTemplateFile        = "prompt_template.txt"
	NoIssuePromptTemplateFile = "no_issue_prompt_template.txt"
)

// Paths is the subset of a RunConfig the build and test collaborators need.
type Paths struct {
	ProjectRoot    string
	SrcDir         string
	TestSourceDir  string
	TestResultsDir string
	Extension      string
	TmpDir         string
}

// limits holds the range-checked fields.
type limits struct {
	NumRetries  int     `validate:"gte=1,lte=100"`
	MaxTokens   int     `validate:"gte=1,lte=200000"`
	Temperature float32 `validate:"gte=0,lte=2"`
	Extension   string  `validate:"required,startswith=."`
	Model       string  `validate:"required"`
}

var validate = validator.New()

// RunConfig is the validated, read-only configuration of one run. Build a
// new instance to change anything.
type RunConfig struct {
	model                  string
	escalationModel        string
	escalateToPremiumModel bool
	paths                  Paths
	promptsPath            string
	apiKeys                map[string]string
	logLevel               string
	numRetries             int
	autoWatch              bool
	maxTokens              int
	temperature            float32
	systemPrompt           string
	promptTemplate         string
	noIssuePromptTemplate  string
}

// New validates o and freezes it into a RunConfig.
func New(o Options) (*RunConfig, error) {
	keys := map[string]string{
		ProviderAnthropic: strings.TrimSpace(o.AnthropicAPIKey),
		ProviderOpenAI:    strings.TrimSpace(o.OpenAIAPIKey),
		ProviderGemini:    strings.TrimSpace(o.GeminiAPIKey),
	}
	if keys[ProviderAnthropic] == "" && keys[ProviderOpenAI] == "" && keys[ProviderGemini] == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(o.LogLevel) == "" {
		return nil, ErrMissingLogLevel
	}
	if strings.TrimSpace(o.TmpDir) == "" {
		return nil, ErrMissingTmpDir
	}

	def := Defaults()
	o = def.Merge(o)

	if err := validate.Struct(limits{
		NumRetries:  o.NumRetries,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		Extension:   o.Extension,
		Model:       o.Model,
	}); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root := o.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	tmpDir, err := filepath.Abs(o.TmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tmp dir: %w", err)
	}

	cfg := &RunConfig{
		model:                  o.Model,
		escalationModel:        o.EscalationModel,
		escalateToPremiumModel: o.EscalateToPremiumModel != nil && *o.EscalateToPremiumModel,
		paths: Paths{
			ProjectRoot:    root,
			SrcDir:         under(root, o.SrcDir),
			TestSourceDir:  under(root, o.TestSourceDir),
			TestResultsDir: under(root, o.TestResultsDir),
			Extension:      o.Extension,
			TmpDir:         tmpDir,
		},
		promptsPath:           o.PromptsPath,
		apiKeys:               keys,
		logLevel:              strings.ToLower(strings.TrimSpace(o.LogLevel)),
		numRetries:            o.NumRetries,
		autoWatch:             o.AutoWatch != nil && *o.AutoWatch,
		maxTokens:             o.MaxTokens,
		temperature:           o.Temperature,
		systemPrompt:          o.SystemPrompt,
		promptTemplate:        o.PromptTemplate,
		noIssuePromptTemplate: o.NoIssuePromptTemplate,
	}

	if cfg.promptsPath != "" {
		if err := cfg.loadPromptFiles(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadPromptFiles fills empty templates from files under promptsPath.
// Missing files leave the template empty.
func (c *RunConfig) loadPromptFiles() error {
	load := func(dst *string, name string) error {
		if *dst != "" {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(c.promptsPath, name))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read prompt file %s: %w", name, err)
		}
		*dst = string(data)
		return nil
	}
	if err := load(&c.systemPrompt, SystemPromptFile); err != nil {
		return err
	}
	if err := load(&c.promptTemplate, PromptTemplateFile); err != nil {
		return err
	}
	return load(&c.noIssuePromptTemplate, NoIssuePromptTemplateFile)
}

func under(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func (c *RunConfig) Model() string                { return c.model }
func (c *RunConfig) EscalationModel() string      { return c.escalationModel }
func (c *RunConfig) EscalateToPremiumModel() bool { return c.escalateToPremiumModel }
func (c *RunConfig) ProjectRoot() string          { return c.paths.ProjectRoot }
func (c *RunConfig) SrcDir() string               { return c.paths.SrcDir }
func (c *RunConfig) TestSourceDir() string        { return c.paths.TestSourceDir }
func (c *RunConfig) TestResultsDir() string       { return c.paths.TestResultsDir }
func (c *RunConfig) Extension() string            { return c.paths.Extension }
func (c *RunConfig) TmpDir() string               { return c.paths.TmpDir }
func (c *RunConfig) PromptsPath() string          { return c.promptsPath }
func (c *RunConfig) LogLevel() string             { return c.logLevel }
func (c *RunConfig) NumRetries() int              { return c.numRetries }
func (c *RunConfig) AutoWatch() bool              { return c.autoWatch }
func (c *RunConfig) MaxTokens() int               { return c.maxTokens }
func (c *RunConfig) Temperature() float32         { return c.temperature }
func (c *RunConfig) SystemPrompt() string         { return c.systemPrompt }
func (c *RunConfig) PromptTemplate() string       { return c.promptTemplate }
func (c *RunConfig) NoIssuePromptTemplate() string {
	return c.noIssuePromptTemplate
}

// Paths returns the project layout.
func (c *RunConfig) Paths() Paths { return c.paths }

// APIKey returns the key configured for provider, or "".
func (c *RunConfig) APIKey(provider string) string { return c.apiKeys[provider] }

// APIKeys returns a copy of the provider → key mapping.
func (c *RunConfig) APIKeys() map[string]string {
	out := make(map[string]string, len(c.apiKeys))
	for k, v := range c.apiKeys {
		out[k] = v
	}
	return out
}

// Public is the shareable view of a RunConfig sent to observers. Keys are
// reduced to presence flags.
type Public struct {
	Model                  string          `json:"model"`
	EscalationModel        string          `json:"escalationModel"`
	EscalateToPremiumModel bool            `json:"escalateToPremiumModel"`
	ProjectRoot            string          `json:"projectRoot"`
	SrcDir                 string          `json:"srcDir"`
	TestSourceDir          string          `json:"testSourceDir"`
	TestResultsDir         string          `json:"testResultsDir"`
	Extension              string          `json:"extension"`
	TmpDir                 string          `json:"tmpDir"`
	PromptsPath            string          `json:"promptsPath"`
	LogLevel               string          `json:"logLevel"`
	NumRetries             int             `json:"numRetries"`
	AutoWatch              bool            `json:"autoWatch"`
	MaxTokens              int             `json:"maxTokens"`
	Temperature            float32         `json:"temperature"`
	Providers              map[string]bool `json:"providers"`
}

// Public returns the observer-safe view.
func (c *RunConfig) Public() Public {
	providers := make(map[string]bool, len(c.apiKeys))
	for k, v := range c.apiKeys {
		providers[k] = v != ""
	}
	return Public{
		Model:                  c.model,
		EscalationModel:        c.escalationModel,
		EscalateToPremiumModel: c.escalateToPremiumModel,
		ProjectRoot:            c.paths.ProjectRoot,
		SrcDir:                 c.paths.SrcDir,
		TestSourceDir:          c.paths.TestSourceDir,
		TestResultsDir:         c.paths.TestResultsDir,
		Extension:              c.paths.Extension,
		TmpDir:                 c.paths.TmpDir,
		PromptsPath:            c.promptsPath,
		LogLevel:               c.logLevel,
		NumRetries:             c.numRetries,
		AutoWatch:              c.autoWatch,
		MaxTokens:              c.maxTokens,
		Temperature:            c.temperature,
		Providers:              providers,
	}
}
