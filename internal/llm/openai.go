package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	headerAuthorization  = "Authorization"
	authSchemeBearer     = "Bearer"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenAI(baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{baseURL: strings.TrimRight(baseURL, "/"), httpClient: newHTTPClient()}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	base := o.baseURL
	if opts.Endpoint != "" {
		base = strings.TrimRight(opts.Endpoint, "/")
	}
	u, err := url.JoinPath(base, "v1", "chat", "completions")
	if err != nil {
		return Response{}, fmt.Errorf("join url: %w", err)
	}

	headers := map[string]string{}
	if strings.TrimSpace(opts.APIKey) != "" {
		headers[headerAuthorization] = authSchemeBearer + " " + opts.APIKey
	}

	var out chatCompletionResponse
	err = postJSON(ctx, o.httpClient, u, headers, chatCompletionRequest{
		Model:       opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, &out)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("openai chat completion: empty completion")
	}

	total := out.Usage.TotalTokens
	if total == 0 {
		total = out.Usage.PromptTokens + out.Usage.CompletionTokens
	}
	return Response{
		Text:          out.Choices[0].Message.Content,
		InputTokens:   out.Usage.PromptTokens,
		OutputTokens:  out.Usage.CompletionTokens,
		TokensUsed:    total,
		EstimatedCost: EstimateCost(opts.Model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
	}, nil
}
