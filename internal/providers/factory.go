package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

// Model families. They double as API key identifiers in config.
const (
	FamilyOpenAI    = config.ProviderOpenAI
	FamilyAnthropic = config.ProviderAnthropic
	FamilyGemini    = config.ProviderGemini
)

// Completion is a provider response.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Completer is one provider client.
type Completer interface {
	Complete(ctx context.Context, req engine.GenerateRequest) (Completion, error)
}

// FamilyForModel maps a model id to its provider family. Unknown models
// return ok=false and are served by the OpenAI client.
func FamilyForModel(model string) (family string, ok bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return FamilyOpenAI, true
	case strings.HasPrefix(m, "claude-"):
		return FamilyAnthropic, true
	case strings.HasPrefix(m, "gemini-"):
		return FamilyGemini, true
	}
	return FamilyOpenAI, false
}

// ClientFactory builds a Completer for a family and key.
type ClientFactory func(ctx context.Context, family, apiKey string) (Completer, error)

// NewClient is the default ClientFactory. OPENAI_BASE_URL redirects the
// OpenAI family to a compatible endpoint.
func NewClient(ctx context.Context, family, apiKey string) (Completer, error) {
	switch family {
	case FamilyAnthropic:
		return NewAnthropicClient(apiKey)
	case FamilyGemini:
		return NewGeminiClient(ctx, apiKey)
	case FamilyOpenAI:
		return NewOpenAIClient(apiKey, os.Getenv("OPENAI_BASE_URL"))
	default:
		return nil, fmt.Errorf("unknown provider family: %s", family)
	}
}

// Router implements engine.Generator. It picks the client for each request's
// model, so an escalation to another family switches clients transparently,
// and retries transient provider failures inside a single cycle.
type Router struct {
	keys       map[string]string
	tmpDir     string
	policy     engine.RetryPolicy
	factory    ClientFactory
	log        engine.Logger
	onRetry    func(model string)
	onResponse func(model string, c Completion)

	mu      sync.Mutex
	clients map[string]Completer
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithClientFactory replaces the SDK-backed client constructor.
func WithClientFactory(f ClientFactory) RouterOption {
	return func(r *Router) { r.factory = f }
}

// WithRetryPolicy overrides engine.DefaultRetryPolicy.
func WithRetryPolicy(p engine.RetryPolicy) RouterOption {
	return func(r *Router) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l engine.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// WithRetryCallback is called for every transient retry.
func WithRetryCallback(f func(model string)) RouterOption {
	return func(r *Router) { r.onRetry = f }
}

// WithResponseCallback is called with every successful completion.
func WithResponseCallback(f func(model string, c Completion)) RouterOption {
	return func(r *Router) { r.onResponse = f }
}

// NewRouter creates a Router using the keys and tmp dir of cfg.
func NewRouter(cfg *config.RunConfig, opts ...RouterOption) *Router {
	r := &Router{
		keys:    cfg.APIKeys(),
		tmpDir:  cfg.TmpDir(),
		policy:  engine.DefaultRetryPolicy(),
		factory: NewClient,
		log:     engine.NopLogger{},
		clients: map[string]Completer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateCode implements engine.Generator.
func (r *Router) GenerateCode(ctx context.Context, req engine.GenerateRequest) (string, error) {
	client, err := r.client(ctx, req.Model)
	if err != nil {
		return "", err
	}

	stamp := r.logRequest(req.Prompt)
	comp, err := engine.RetryWithPolicy(ctx, r.policy,
		func(ctx context.Context) (Completion, error) {
			return client.Complete(ctx, req)
		},
		engine.ClassifyProviderError,
		func(attempt int, delay time.Duration, err error) {
			r.log.Warn(fmt.Sprintf("generation attempt %d with %s failed, retrying in %v: %v", attempt, req.Model, delay, err))
			if r.onRetry != nil {
				r.onRetry(req.Model)
			}
		},
	)
	if err != nil {
		return "", err
	}

	r.logResponse(stamp, comp.Text)
	r.log.Debug(fmt.Sprintf("token usage - prompt: %d, completion: %d", comp.PromptTokens, comp.CompletionTokens))
	if r.onResponse != nil {
		r.onResponse(req.Model, comp)
	}
	return comp.Text, nil
}

func (r *Router) client(ctx context.Context, model string) (Completer, error) {
	family, known := FamilyForModel(model)
	if !known {
		r.log.Warn(fmt.Sprintf("model %s not recognized, defaulting to the %s client", model, family))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[family]; ok {
		return c, nil
	}

	key := r.keys[family]
	if key == "" {
		return nil, engine.NewEnvironmentError("generate",
			fmt.Errorf("no API key found for %s model family (model %s)", family, model))
	}
	c, err := r.factory(ctx, family, key)
	if err != nil {
		return nil, engine.NewEnvironmentError("generate", fmt.Errorf("failed to create %s client: %w", family, err))
	}
	r.clients[family] = c
	return c, nil
}

// logRequest stores the prompt as tmpDir/request_<stamp>.txt. Failures only
// cost the transcript.
func (r *Router) logRequest(prompt string) string {
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	stamp = strings.ReplaceAll(stamp, ".", "")
	if r.tmpDir == "" {
		return stamp
	}
	if err := os.MkdirAll(r.tmpDir, 0755); err != nil {
		r.log.Warn(fmt.Sprintf("failed to create tmp dir: %v", err))
		return stamp
	}
	if err := os.WriteFile(filepath.Join(r.tmpDir, "request_"+stamp+".txt"), []byte(prompt), 0644); err != nil {
		r.log.Warn(fmt.Sprintf("failed to write request transcript: %v", err))
	}
	return stamp
}

func (r *Router) logResponse(stamp, text string) {
	if r.tmpDir == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(r.tmpDir, "response_"+stamp+".txt"), []byte(text), 0644); err != nil {
		r.log.Warn(fmt.Sprintf("failed to write response transcript: %v", err))
	}
}
