package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

// PromptV1 is the first version of the built-in prompts.
const PromptV1 PromptVersion = "1.0.0"

// Built-in prompt ids.
const (
	IDSystem         = "system"
	IDPromptTemplate = "prompt_template"
	IDNoIssue        = "no_issue_prompt_template"
)

// Placeholders substituted by Renderer.
const (
	PlaceholderTestOutput         = "{testOutput}"
	PlaceholderFilesContent       = "{filesContent}"
	PlaceholderBuildFileContent   = "{buildFileContent}"
	PlaceholderBuildGradleContent = "{buildGradleContent}"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string
	Version     PromptVersion
	Content     string
	Description string
	Deprecated  bool
}
