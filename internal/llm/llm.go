// Package llm sends prompts to local and hosted language models.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// Options selects the model for one call.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	Endpoint    string
	Temperature float64
	MaxTokens   int
}

// Response is the generated text plus usage accounting.
type Response struct {
	Text          string
	TokensUsed    int
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (Response, error)
}

// Router dispatches to the generator registered for Options.Provider.
type Router struct {
	providers map[string]Generator
}

// NewRouter registers the built-in providers. ollamaEndpoint is used when a call has no endpoint.
func NewRouter(ollamaEndpoint string) *Router {
	return &Router{providers: map[string]Generator{
		ProviderOllama: NewOllama(ollamaEndpoint),
		ProviderOpenAI: NewOpenAI(""),
		ProviderClaude: NewClaude(""),
	}}
}

// Register adds or replaces a provider.
func (r *Router) Register(name string, g Generator) {
	r.providers[name] = g
}

// Generate implements Generator.
func (r *Router) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	g, ok := r.providers[opts.Provider]
	if !ok {
		return Response{}, fmt.Errorf("unknown AI provider %q", opts.Provider)
	}
	return g.Generate(ctx, prompt, opts)
}

// RequiresAPIKey reports whether provider is a hosted service.
func RequiresAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// NormalizeModel strips a "provider:" prefix when it names the selected provider.
// Ollama tags such as "qwen2.5:7b" are left intact.
func NormalizeModel(provider, model string) string {
	prefix, rest, ok := strings.Cut(model, ":")
	if ok && strings.EqualFold(prefix, provider) && rest != "" {
		return rest
	}
	return model
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	return f(ctx, prompt, opts)
}
