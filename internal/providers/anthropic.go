package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/engine"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient generates code with the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is empty")
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}, nil
}

// Complete implements Completer.
func (c *AnthropicClient) Complete(ctx context.Context, req engine.GenerateRequest) (Completion, error) {
	maxTokens := 4096
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := req.Temperature

	msgReq := anthropic.MessagesRequest{
		Model: anthropic.Model(req.Model),
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
		}},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if req.SystemPrompt != "" {
		msgReq.MultiSystem = []anthropic.MessageSystemPart{{
			Type: "text",
			Text: req.SystemPrompt,
		}}
	}

	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return Completion{}, engine.WrapProviderError(FamilyAnthropic, err, httpStatus, retryAfter)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if sb.Len() == 0 {
		return Completion{}, engine.WrapProviderError(FamilyAnthropic,
			fmt.Errorf("empty response (stop reason %q)", resp.StopReason), 0, "")
	}

	return Completion{
		Text:             sb.String(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}
