package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
)

// AdapterOption sets adapter-level call defaults.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	model       string
	temperature *float64
}

// WithDefaultModel sets the model used when a call names none.
func WithDefaultModel(model string) AdapterOption {
	return func(o *adapterOptions) { o.model = model }
}

// WithDefaultTemperature sets the temperature used when a call sets none.
func WithDefaultTemperature(t float64) AdapterOption {
	return func(o *adapterOptions) { o.temperature = &t }
}

func applyOptions(opts []AdapterOption) adapterOptions {
	var o adapterOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// httpClient holds the connection settings shared by the JSON adapters.
type httpClient struct {
	provider string
	cfg      configuration.ProviderConfig
	client   *http.Client
}

func newHTTPClient(provider string, cfg configuration.ProviderConfig, client *http.Client) *httpClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{provider: provider, cfg: cfg, client: client}
}

// withTimeout bounds non-streaming calls by the configured timeout.
// Streams are bounded by the caller's context only.
func (c *httpClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// postJSON sends body to path. A non-2xx status is returned as a
// ProviderError with the body already consumed; on success the caller owns
// resp.Body.
func (c *httpClient) postJSON(ctx context.Context, path string, body any, headers map[string]string, hint string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(c.provider, fmt.Errorf("request to %s failed: %w", c.cfg.Endpoint, err), hint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(c.provider, resp)
	}
	return resp, nil
}
