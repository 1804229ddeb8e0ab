package prompts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/changes"
	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// Renderer implements engine.PromptRenderer by filling a template with the
// previous run output, the project sources and the build manifest, then
// appending the hint history.
type Renderer struct {
	paths    config.Paths
	registry *PromptRegistry
}

// NewRenderer creates a Renderer. A nil registry uses DefaultRegistry for
// empty templates.
func NewRenderer(paths config.Paths, registry *PromptRegistry) *Renderer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Renderer{paths: paths, registry: registry}
}

// Render implements engine.PromptRenderer.
func (r *Renderer) Render(ctx context.Context, in engine.PromptInput) (string, error) {
	tmpl := in.Template
	if strings.TrimSpace(tmpl) == "" {
		id := IDPromptTemplate
		if !in.Failing && len(in.Hints) > 0 {
			id = IDNoIssue
		}
		tmpl = r.registry.Content(id)
	}

	b := NewPromptBuilder(tmpl).SetVariable(PlaceholderTestOutput, in.PreviousOutput)

	if strings.Contains(tmpl, PlaceholderFilesContent) {
		files, err := r.filesContent(ctx)
		if err != nil {
			return "", err
		}
		b.SetVariable(PlaceholderFilesContent, files)
	}

	if strings.Contains(tmpl, PlaceholderBuildFileContent) || strings.Contains(tmpl, PlaceholderBuildGradleContent) {
		manifest, err := r.buildFileContent()
		if err != nil {
			return "", err
		}
		b.SetVariable(PlaceholderBuildFileContent, manifest)
		b.SetVariable(PlaceholderBuildGradleContent, manifest)
	}

	return engine.AppendHints(b.Build(), in.Hints, in.Failing), nil
}

// filesContent renders sources and tests as "File: <rel>\n\n<content>"
// entries joined by blank lines.
func (r *Renderer) filesContent(ctx context.Context) (string, error) {
	files, err := changes.CollectFiles(ctx, r.paths.ProjectRoot,
		[]string{r.paths.SrcDir, r.paths.TestSourceDir}, r.paths.Extension, r.paths.TmpDir)
	if err != nil {
		return "", fmt.Errorf("failed to collect project files: %w", err)
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, "File: "+f.Path+"\n\n"+f.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// buildFileContent reads the manifest of the detected project type. Projects
// without one render as "".
func (r *Renderer) buildFileContent() (string, error) {
	pt := workspace.DetectProjectType(r.paths.ProjectRoot)
	path := workspace.BuildFileFor(r.paths.ProjectRoot, pt)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read build file: %w", err)
	}
	return string(data), nil
}
