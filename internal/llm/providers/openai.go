package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// OpenAI call defaults.
const (
	DefaultOpenAIModel       = "gpt-4o"
	DefaultOpenAITemperature = 0.7
)

// OpenAIAdapter implements the chat/completions API for OpenAI GPT models.
type OpenAIAdapter struct {
	client *httpClient
	model  string
	temp   float64
}

var _ transport.Provider = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates an OpenAI adapter. If no endpoint is configured
// it defaults to OpenAI's production API.
func NewOpenAIAdapter(cfg configuration.ProviderConfig, client *http.Client, opts ...AdapterOption) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = configuration.OpenAIAPIKeyEnv
	}

	o := applyOptions(opts)
	a := &OpenAIAdapter{
		client: newHTTPClient(ProviderOpenAI, cfg, client),
		model:  o.model,
		temp:   DefaultOpenAITemperature,
	}
	if a.model == "" {
		a.model = DefaultOpenAIModel
	}
	if o.temperature != nil {
		a.temp = *o.temperature
	}
	return a
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string { return ProviderOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *OpenAIAdapter) buildRequest(prompt string, cfg *transport.Config, stream bool) openAIRequest {
	req := openAIRequest{
		Model:       a.model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: a.temp,
		Stream:      stream,
	}
	if m := cfg.Model(); m != "" {
		req.Model = m
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			req.Temperature = *cfg.Temperature
		}
		req.MaxTokens = cfg.MaxTokens
	}
	return req
}

// apiKey prefers the per-call key, then the configured key or variable,
// then OPENAI_API_KEY.
func (a *OpenAIAdapter) apiKey(cfg *transport.Config) (string, error) {
	if cfg != nil && cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if key := a.client.cfg.ResolveAPIKey(); key != "" {
		return key, nil
	}
	if key := os.Getenv(configuration.OpenAIAPIKeyEnv); key != "" {
		return key, nil
	}
	return "", &llmerrors.ProviderError{
		Provider: ProviderOpenAI,
		Message:  configuration.OpenAIAPIKeyEnv + " is not set",
		Type:     llmerrors.ErrorTypeAuth,
		Cause:    llmerrors.ErrMissingAPIKey,
	}
}

func (a *OpenAIAdapter) post(ctx context.Context, prompt string, cfg *transport.Config, stream bool) (*http.Response, error) {
	key, err := a.apiKey(cfg)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + key}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return a.client.postJSON(ctx, "/chat/completions", a.buildRequest(prompt, cfg, stream), headers, "")
}

// Generate performs a non-streaming chat completion.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	ctx, cancel := a.client.withTimeout(ctx)
	defer cancel()

	resp, err := a.post(ctx, prompt, cfg, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &llmerrors.ProviderError{
			Provider: ProviderOpenAI,
			Message:  fmt.Sprintf("decode response: %v", err),
			Type:     llmerrors.ErrorTypeUnknown,
			Cause:    fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err),
		}
	}

	out := &transport.Response{}
	if len(body.Choices) > 0 {
		out.Text = body.Choices[0].Message.Content
	}
	if body.Usage != nil {
		out.Usage = &transport.Usage{
			PromptTokens:     body.Usage.PromptTokens,
			CompletionTokens: body.Usage.CompletionTokens,
			TotalTokens:      body.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream consumes server-sent events, yielding choices[0].delta.content
// until "data: [DONE]".
func (a *OpenAIAdapter) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	resp, err := a.post(ctx, prompt, cfg, true)
	if err != nil {
		return nil, err
	}
	return newLineStream(ProviderOpenAI, resp.Body, parseSSELine), nil
}

var (
	ssePrefix = []byte("data:")
	sseDone   = []byte("[DONE]")
)

func parseSSELine(line []byte) (string, bool, bool, error) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, ssePrefix) {
		// Blank separators, comments and other fields carry no content.
		return "", false, false, nil
	}
	data := bytes.TrimSpace(line[len(ssePrefix):])
	if bytes.Equal(data, sseDone) {
		return "", false, true, nil
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, false, nil
	}
	if chunk.Error != nil {
		return "", false, false, fmt.Errorf("%s: %s", ProviderOpenAI, chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, false, nil
	}
	text := chunk.Choices[0].Delta.Content
	return text, text != "", false, nil
}
