package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com"
	claudeAPIVersion     = "2023-06-01"
	claudeMaxTokens      = 4096
)

// Claude calls the Anthropic messages API.
type Claude struct {
	baseURL    string
	httpClient *http.Client
}

func NewClaude(baseURL string) *Claude {
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &Claude{baseURL: strings.TrimRight(baseURL, "/"), httpClient: newHTTPClient()}
}

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Generator.
func (c *Claude) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	base := c.baseURL
	if opts.Endpoint != "" {
		base = strings.TrimRight(opts.Endpoint, "/")
	}
	u, err := url.JoinPath(base, "v1", "messages")
	if err != nil {
		return Response{}, fmt.Errorf("join url: %w", err)
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = claudeMaxTokens
	}

	var out claudeResponse
	err = postJSON(ctx, c.httpClient, u, map[string]string{
		"x-api-key":         opts.APIKey,
		"anthropic-version": claudeAPIVersion,
	}, claudeRequest{
		Model:       opts.Model,
		MaxTokens:   maxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
	}, &out)
	if err != nil {
		return Response{}, fmt.Errorf("claude messages: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, fmt.Errorf("claude messages: empty completion")
	}

	return Response{
		Text:          text.String(),
		InputTokens:   out.Usage.InputTokens,
		OutputTokens:  out.Usage.OutputTokens,
		TokensUsed:    out.Usage.InputTokens + out.Usage.OutputTokens,
		EstimatedCost: EstimateCost(opts.Model, out.Usage.InputTokens, out.Usage.OutputTokens),
	}, nil
}
