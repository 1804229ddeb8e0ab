package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/engine"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient generates code with the OpenAI chat completions API, or any
// OpenAI-compatible endpoint when baseURL is set.
type OpenAIClient struct {
	client *openai.Client
	family string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is empty")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), family: FamilyOpenAI}, nil
}

// isReasoningModel reports whether model belongs to the o1 line, which
// rejects system messages and non-default temperatures.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1")
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, req engine.GenerateRequest) (Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
	}

	if isReasoningModel(req.Model) {
		prompt := req.Prompt
		if req.SystemPrompt != "" {
			prompt = req.SystemPrompt + "\n\n" + prompt
		}
		chatReq.Messages = []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}}
		temperature := float32(1.0)
		chatReq.Temperature = &temperature
	} else {
		if req.SystemPrompt != "" {
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			})
		}
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
		if req.MaxTokens > 0 {
			chatReq.MaxTokens = req.MaxTokens
		}
		temperature := req.Temperature
		chatReq.Temperature = &temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return Completion{}, engine.WrapProviderError(c.family, err, httpStatus, retryAfter)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, engine.WrapProviderError(c.family, fmt.Errorf("empty response"), 0, "")
	}

	return Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// extractErrorMetadata extracts HTTP status code and Retry-After header from an error.
// SDK errors only expose these through their message.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusBadRequest,
		http.StatusPaymentRequired,
	} {
		if strings.Contains(errStr, fmt.Sprint(code)) {
			httpStatus = code
			break
		}
	}

	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}

	return httpStatus, retryAfter
}
