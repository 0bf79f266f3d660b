// Package transport defines the provider contract shared by every backend
// adapter and every decorator in the LLM pipeline, together with the
// composition helpers used to stack decorators around a backend.
package transport

import (
	"context"
)

// Config carries optional per-call settings for a single Generate or Stream
// call. A nil *Config means the caller supplied no settings. Layers must treat
// it as read-only.
type Config struct {
	ModelName   string   `json:"model_name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	APIKey      string   `json:"-"` // Sensitive, not serialized
}

// Model returns the configured model name or "" when cfg is nil.
func (c *Config) Model() string {
	if c == nil {
		return ""
	}
	return c.ModelName
}

// Usage reports token consumption for a single non-streaming call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the result of a non-streaming call. Usage is nil when the
// backend reported no token counts.
type Response struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

// Clone returns a deep copy so cached responses cannot be mutated through
// a value handed to a caller.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{Text: r.Text}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return out
}

// Provider is the capability every backend adapter and every decorator
// implements. Decorators hold exactly one inner Provider and satisfy the same
// interface, so they can be stacked without limit.
type Provider interface {
	// Name identifies the backend for metrics. Decorators forward the
	// name of the provider they wrap.
	Name() string

	// Generate performs a single-shot completion and returns once the full
	// answer is available.
	Generate(ctx context.Context, prompt string, cfg *Config) (*Response, error)

	// Stream starts a streaming completion. The returned TokenStream yields
	// fragments in backend order; the caller must Close it.
	Stream(ctx context.Context, prompt string, cfg *Config) (TokenStream, error)
}

// Middleware transforms a Provider into a decorated Provider.
type Middleware func(Provider) Provider

// Chain builds a decorator stack around a core provider.
// Middleware executes in the order provided with the first middleware
// outermost, so Chain(p, a, b) yields a(b(p)).
func Chain(p Provider, middlewares ...Middleware) Provider {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		p = middlewares[i](p)
	}
	return p
}

// Funcs adapts plain functions to the Provider interface.
// A nil GenerateFn or StreamFn returns ErrNotSupported.
type Funcs struct {
	ProviderName string
	GenerateFn   func(ctx context.Context, prompt string, cfg *Config) (*Response, error)
	StreamFn     func(ctx context.Context, prompt string, cfg *Config) (TokenStream, error)
}

// Name implements Provider.
func (f *Funcs) Name() string { return f.ProviderName }

// Generate implements Provider.
func (f *Funcs) Generate(ctx context.Context, prompt string, cfg *Config) (*Response, error) {
	if f.GenerateFn == nil {
		return nil, ErrNotSupported
	}
	return f.GenerateFn(ctx, prompt, cfg)
}

// Stream implements Provider.
func (f *Funcs) Stream(ctx context.Context, prompt string, cfg *Config) (TokenStream, error) {
	if f.StreamFn == nil {
		return nil, ErrNotSupported
	}
	return f.StreamFn(ctx, prompt, cfg)
}
