package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{provider: "ollama", model: "ollama:qwen2.5:7b", want: "qwen2.5:7b"},
		{provider: "ollama", model: "qwen2.5:7b", want: "qwen2.5:7b"},
		{provider: "claude", model: "claude:claude-3-5-sonnet-latest", want: "claude-3-5-sonnet-latest"},
		{provider: "openai", model: "claude:claude-3-5-sonnet-latest", want: "claude:claude-3-5-sonnet-latest"},
		{provider: "openai", model: "gpt-4o", want: "gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeModel(tt.provider, tt.model))
		})
	}
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.0000015+0.0000060, EstimateCost("gpt-4o-mini", 10, 10), 1e-12)
	assert.InDelta(t, 18.0, EstimateCost("claude-3-5-sonnet-20241022", 1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, EstimateCost("llama3", 1000, 1000))
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var body ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2.5:7b", body.Model)
		assert.False(t, body.Stream)
		assert.Equal(t, 2000, body.Options.NumPredict)

		_, _ = w.Write([]byte(`{"response":"hello","prompt_eval_count":12,"eval_count":3,"done":true}`))
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL).Generate(context.Background(), "say hello", Options{Model: "qwen2.5:7b"})
	require.NoError(t, err)
	assert.Equal(t, Response{Text: "hello", InputTokens: 12, OutputTokens: 3, TokensUsed: 15}, resp)
}

func TestOllama_HasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"qwen2.5:7b"}]}`))
	}))
	defer srv.Close()

	o := NewOllama("http://unused")
	for model, want := range map[string]bool{"llama3": true, "qwen2.5:7b": true, "mistral": false} {
		got, err := o.HasModel(context.Background(), srv.URL, model)
		require.NoError(t, err)
		assert.Equal(t, want, got, model)
	}
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"summary"}}],"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAI(srv.URL).Generate(context.Background(), "summarize", Options{Model: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "summary", resp.Text)
	assert.Equal(t, 120, resp.TokensUsed)
	assert.Greater(t, resp.EstimatedCost, 0.0)
}

func TestClaude_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],"usage":{"input_tokens":50,"output_tokens":10}}`))
	}))
	defer srv.Close()

	resp, err := NewClaude(srv.URL).Generate(context.Background(), "p", Options{Model: "claude-3-5-haiku-latest", APIKey: "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
	assert.Equal(t, 60, resp.TokensUsed)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL).Generate(context.Background(), "p", Options{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestRouter(t *testing.T) {
	r := NewRouter("")
	_, err := r.Generate(context.Background(), "p", Options{Provider: "bard"})
	assert.EqualError(t, err, `unknown AI provider "bard"`)

	r.Register("echo", GeneratorFunc(func(_ context.Context, prompt string, _ Options) (Response, error) {
		return Response{Text: prompt}, nil
	}))
	resp, err := r.Generate(context.Background(), "ping", Options{Provider: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Text)

	assert.False(t, RequiresAPIKey(ProviderOllama))
	assert.True(t, RequiresAPIKey(ProviderClaude))
}
