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

// DefaultOllamaModel is used when neither the call nor the adapter names a model.
const DefaultOllamaModel = "llama3.1"

// ollamaHint is appended to connection failures.
const ollamaHint = "Is Ollama running? Run 'ollama serve' to start it."

// OllamaAdapter talks to a local Ollama server through /api/generate.
type OllamaAdapter struct {
	client *httpClient
	model  string
	temp   *float64
}

var _ transport.Provider = (*OllamaAdapter)(nil)

// NewOllamaAdapter creates an Ollama adapter. The base URL comes from
// cfg.Endpoint, then OLLAMA_BASE_URL, then http://localhost:11434.
func NewOllamaAdapter(cfg configuration.ProviderConfig, client *http.Client, opts ...AdapterOption) *OllamaAdapter {
	base := cfg.Endpoint
	if base == "" {
		base = os.Getenv(configuration.OllamaBaseURLEnv)
	}
	if base == "" {
		base = configuration.DefaultOllamaEndpoint
	}
	cfg.Endpoint = strings.TrimRight(base, "/")

	o := applyOptions(opts)
	model := o.model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaAdapter{
		client: newHTTPClient(ProviderOllama, cfg, client),
		model:  model,
		temp:   o.temperature,
	}
}

// Name returns "ollama".
func (a *OllamaAdapter) Name() string { return ProviderOllama }

// BaseURL returns the resolved server address.
func (a *OllamaAdapter) BaseURL() string { return a.client.cfg.Endpoint }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChunk struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
	Error           string `json:"error"`
}

func (a *OllamaAdapter) buildRequest(prompt string, cfg *transport.Config, stream bool) ollamaRequest {
	req := ollamaRequest{Model: a.model, Prompt: prompt, Stream: stream}
	if m := cfg.Model(); m != "" {
		req.Model = m
	}

	opts := &ollamaOptions{Temperature: a.temp}
	if cfg != nil {
		if cfg.Temperature != nil {
			opts.Temperature = cfg.Temperature
		}
		opts.NumPredict = cfg.MaxTokens
	}
	if opts.Temperature != nil || opts.NumPredict > 0 {
		req.Options = opts
	}
	return req
}

// Generate performs a non-streaming completion.
func (a *OllamaAdapter) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	ctx, cancel := a.client.withTimeout(ctx)
	defer cancel()

	resp, err := a.client.postJSON(ctx, "/api/generate", a.buildRequest(prompt, cfg, false), nil, ollamaHint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chunk ollamaChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return nil, &llmerrors.ProviderError{
			Provider: ProviderOllama,
			Message:  fmt.Sprintf("decode response: %v", err),
			Type:     llmerrors.ErrorTypeUnknown,
			Cause:    fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err),
		}
	}

	out := &transport.Response{Text: chunk.Response}
	if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
		out.Usage = &transport.Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
		}
	}
	return out, nil
}

// Stream reads the NDJSON response, yielding each non-empty "response"
// field until a line carries "done": true.
func (a *OllamaAdapter) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	resp, err := a.client.postJSON(ctx, "/api/generate", a.buildRequest(prompt, cfg, true), nil, ollamaHint)
	if err != nil {
		return nil, err
	}
	return newLineStream(ProviderOllama, resp.Body, parseOllamaLine), nil
}

func parseOllamaLine(line []byte) (string, bool, bool, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return "", false, false, nil
	}
	var chunk ollamaChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, false, nil
	}
	if chunk.Error != "" {
		return "", false, false, fmt.Errorf("%s: %s", ProviderOllama, chunk.Error)
	}
	return chunk.Response, chunk.Response != "", chunk.Done, nil
}
