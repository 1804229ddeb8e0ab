package prompts

import (
	"strings"
)

// PromptBuilder composes a prompt from a template, extra fragments and
// {name} placeholder values.
type PromptBuilder struct {
	fragments []string
	variables map[string]string
}

// NewPromptBuilder starts a builder from template text.
func NewPromptBuilder(template string) *PromptBuilder {
	return &PromptBuilder{
		fragments: []string{template},
		variables: make(map[string]string),
	}
}

// AddFragment appends a fragment to the prompt.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if text != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets the value for placeholder, e.g. "{testOutput}".
func (b *PromptBuilder) SetVariable(placeholder, value string) *PromptBuilder {
	b.variables[placeholder] = value
	return b
}

// Build constructs the final prompt. Values are substituted in one pass,
// so text inside a value is never treated as a placeholder.
func (b *PromptBuilder) Build() string {
	result := strings.Join(b.fragments, "\n\n")
	if len(b.variables) == 0 {
		return result
	}
	pairs := make([]string, 0, 2*len(b.variables))
	for placeholder, value := range b.variables {
		pairs = append(pairs, placeholder, value)
	}
	return strings.NewReplacer(pairs...).Replace(result)
}
