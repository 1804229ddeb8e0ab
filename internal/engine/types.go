package engine

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
)

// GenerateRequest is everything a provider needs for one generation call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float32
}

// Generator produces code for a prompt. Errors are provider errors unless
// they wrap an EnvironmentError.
type Generator interface {
	GenerateCode(ctx context.Context, req GenerateRequest) (string, error)
}

// ApplyResult lists the files an Applier wrote.
type ApplyResult struct {
	Written []string
	Skipped []string // refused paths (test sources, outside the project)
}

// Applier writes generated code into the working tree. cycle is the 1-based
// cycle number used to archive originals.
type Applier interface {
	Apply(ctx context.Context, cycle int, code string) (ApplyResult, error)
}

// TreeSnapshot maps project-relative paths to a content fingerprint.
type TreeSnapshot struct {
	TakenAt time.Time
	Files   map[string]string
}

// ChangeTracker snapshots the source and test trees and diffs snapshots.
type ChangeTracker interface {
	Snapshot(ctx context.Context) (TreeSnapshot, error)
	Diff(before, after TreeSnapshot) ChangeSummary
}

// BuildResult is the structured outcome of a build.
type BuildResult struct {
	CompiledSuccessfully bool
	Output               string
	At                   time.Time
}

// TestResult is the structured outcome of a test run.
type TestResult struct {
	Passed       bool
	TotalTests   int
	FailedTests  []string
	PassedTests  []string
	ErroredTests []string
	Output       string
	At           time.Time
}

// Builder compiles the project. Build failures are data; a non-nil error
// means the build could not run at all.
type Builder interface {
	Build(ctx context.Context, paths config.Paths) (BuildResult, error)
}

// Tester runs the project tests. Test failures are data; a non-nil error
// means the tests could not run at all.
type Tester interface {
	Test(ctx context.Context, paths config.Paths) (TestResult, error)
}

// PromptInput carries what a PromptRenderer needs for one cycle.
type PromptInput struct {
	Template       string
	Hints          []string
	Failing        bool   // true when prior failure hints exist
	PreviousOutput string // build/test output of the previous cycle
}

// PromptRenderer turns a template and hint history into the final prompt.
type PromptRenderer interface {
	Render(ctx context.Context, in PromptInput) (string, error)
}

// Logger is the severity-keyed logging contract used by the engine.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// NopLogger discards every message.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string) {}
func (NopLogger) Info(string)  {}
func (NopLogger) Warn(string)  {}
func (NopLogger) Error(string) {}
