package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// Ollama talks to a local Ollama server.
type Ollama struct {
	endpoint   string
	httpClient *http.Client
}

func NewOllama(endpoint string) *Ollama {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	return &Ollama{endpoint: strings.TrimRight(endpoint, "/"), httpClient: newHTTPClient()}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (o *Ollama) base(opts Options) string {
	if opts.Endpoint != "" {
		return strings.TrimRight(opts.Endpoint, "/")
	}
	return o.endpoint
}

// Generate implements Generator via /api/generate without streaming.
func (o *Ollama) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	u, err := url.JoinPath(o.base(opts), "api", "generate")
	if err != nil {
		return Response{}, fmt.Errorf("join url: %w", err)
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	var out ollamaGenerateResponse
	err = postJSON(ctx, o.httpClient, u, nil, ollamaGenerateRequest{
		Model:   opts.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	}, &out)
	if err != nil {
		return Response{}, fmt.Errorf("ollama generate: %w", err)
	}

	return Response{
		Text:         out.Response,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		TokensUsed:   out.PromptEvalCount + out.EvalCount,
	}, nil
}

// HasModel reports whether model is pulled on the server. A bare name also
// matches its ":latest" tag.
func (o *Ollama) HasModel(ctx context.Context, endpoint, model string) (bool, error) {
	u, err := url.JoinPath(o.base(Options{Endpoint: endpoint}), "api", "tags")
	if err != nil {
		return false, fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("new request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama tags: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := decodeBody(resp, &tags); err != nil {
		return false, fmt.Errorf("ollama tags: %w", err)
	}

	for _, m := range tags.Models {
		if m.Name == model || m.Name == model+":latest" {
			return true, nil
		}
	}
	return false, nil
}
