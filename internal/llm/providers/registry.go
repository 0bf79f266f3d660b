// Package providers holds the backend adapters that speak each LLM vendor's
// HTTP API, the factory that selects one by name and a registry of named
// providers.
package providers

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// Supported backend identifiers. They match configuration keys.
const (
	ProviderOpenAI = configuration.ProviderOpenAI
	ProviderOllama = configuration.ProviderOllama
)

// NewBackend builds the adapter for name. Names without an adapter fail
// with ErrUnsupportedProvider.
func NewBackend(name string, cfg configuration.ProviderConfig, client *http.Client, opts ...AdapterOption) (transport.Provider, error) {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIAdapter(cfg, client, opts...), nil
	case ProviderOllama:
		return NewOllamaAdapter(cfg, client, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
}

// Registry maps names to providers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]transport.Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]transport.Provider)}
}

// Register adds p under its Name, replacing any earlier entry.
func (r *Registry) Register(p transport.Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (transport.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
