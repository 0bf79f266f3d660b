// Package llm assembles a provider pipeline from configuration. A backend
// adapter is wrapped, innermost to outermost, by Retry, Cache, Observability
// and Cost. Optional circuit breaker and rate limit layers sit between Retry
// and the backend so each retry attempt passes through them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ahrav/go-llmware/internal/llm/business"
	"github.com/ahrav/go-llmware/internal/llm/cache"
	"github.com/ahrav/go-llmware/internal/llm/circuitbreaker"
	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/observability"
	"github.com/ahrav/go-llmware/internal/llm/providers"
	"github.com/ahrav/go-llmware/internal/llm/ratelimit"
	"github.com/ahrav/go-llmware/internal/llm/retry"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

// ErrNilConfig is returned by NewProvider without a configuration.
var ErrNilConfig = errors.New("nil configuration")

// Stack holds the decorator middlewares. Nil entries are skipped.
type Stack struct {
	Retry          transport.Middleware
	CircuitBreaker transport.Middleware
	RateLimit      transport.Middleware
	Cache          transport.Middleware
	Observability  transport.Middleware
	Cost           transport.Middleware
}

// Compose wraps backend so a call enters Cost first, then Observability,
// Cache, Retry, CircuitBreaker and RateLimit before reaching backend.
func Compose(backend transport.Provider, s Stack) transport.Provider {
	return transport.Chain(backend, s.Cost, s.Observability, s.Cache, s.Retry, s.CircuitBreaker, s.RateLimit)
}

// Pipeline is the assembled provider. Besides the provider contract it
// exposes each layer's counters and releases resources it created.
type Pipeline struct {
	transport.Provider

	retry   *retry.Provider
	breaker *circuitbreaker.Provider
	limiter *ratelimit.Provider
	cache   *cache.Provider
	cost    *business.Provider

	ownedStore cache.Store
	asyncSink  *events.AsyncSink
	logger     *slog.Logger
}

var _ transport.Provider = (*Pipeline)(nil)

// Stats collects counters from every installed layer. Layers that are not
// installed report nil.
type Stats struct {
	Retry          *retry.Stats          `json:"retry,omitempty"`
	CircuitBreaker *circuitbreaker.Stats `json:"circuit_breaker,omitempty"`
	RateLimit      *ratelimit.Stats      `json:"rate_limit,omitempty"`
	Cache          *cache.Stats          `json:"cache,omitempty"`
	Cost           *business.Stats       `json:"cost,omitempty"`
	DroppedEvents  int64                 `json:"dropped_events"`
}

// NewProvider builds the backend named by cfg.LLM.Provider, unless one is
// injected with WithBackend, and wraps it with the layers cfg enables. Retry
// is always installed.
func NewProvider(ctx context.Context, cfg *configuration.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = observability.NewLogger(os.Stderr, cfg.Observability)
	}
	p := &Pipeline{logger: logger.With("component", "llm")}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = newBackend(cfg, o)
		if err != nil {
			return nil, err
		}
	}

	sink := o.sink
	if sink == nil {
		sink = events.NewLogSink(logger, slog.LevelDebug)
	}
	if cfg.Observability.EventBuffer > 0 {
		p.asyncSink = events.NewAsyncSink(sink, cfg.Observability.EventBuffer)
		sink = p.asyncSink
	}

	var err error
	var inner transport.Provider = backend

	if cfg.RateLimit.Enabled {
		if p.limiter, err = ratelimit.New(inner, cfg.RateLimit, ratelimit.WithLogger(logger)); err != nil {
			return nil, p.abort(ctx, fmt.Errorf("rate limit layer: %w", err))
		}
		inner = p.limiter
	}
	if cfg.CircuitBreaker.Enabled {
		if p.breaker, err = circuitbreaker.New(inner, cfg.CircuitBreaker, circuitbreaker.WithLogger(logger)); err != nil {
			return nil, p.abort(ctx, fmt.Errorf("circuit breaker layer: %w", err))
		}
		inner = p.breaker
	}

	if p.retry, err = retry.New(inner, cfg.Retry, retry.WithLogger(logger)); err != nil {
		return nil, p.abort(ctx, fmt.Errorf("retry layer: %w", err))
	}
	inner = p.retry

	if cfg.Cache.Enabled {
		store := o.store
		if store == nil {
			if store, err = cache.NewStore(ctx, cfg.Cache, logger); err != nil {
				return nil, p.abort(ctx, fmt.Errorf("cache layer: %w", err))
			}
			p.ownedStore = store
		}
		p.cache = cache.New(inner, store, cache.WithLogger(logger))
		inner = p.cache
	}

	if cfg.Observability.Enabled {
		obsOpts := []observability.Option{
			observability.WithLogger(logger),
			observability.WithEventSink(sink),
			observability.WithRedactPrompts(cfg.Observability.RedactPrompts),
		}
		if o.metrics != nil {
			obsOpts = append(obsOpts, observability.WithMetrics(o.metrics))
		}
		inner = observability.New(inner, obsOpts...)
	}

	if cfg.Pricing.Enabled {
		table := o.prices
		if table == nil {
			table = business.PriceTableFromConfig(cfg.Pricing.Prices)
		}
		p.cost = business.New(inner, table, business.WithLogger(logger), business.WithEventSink(sink))
		inner = p.cost
	}

	p.Provider = inner
	p.logger.DebugContext(ctx, "provider pipeline ready",
		"provider", backend.Name(),
		"model", cfg.LLM.Model,
		"cache", cfg.Cache.Enabled,
		"observability", cfg.Observability.Enabled,
		"pricing", cfg.Pricing.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
		"circuit_breaker", cfg.CircuitBreaker.Enabled)
	return p, nil
}

func newBackend(cfg *configuration.Config, o *options) (transport.Provider, error) {
	name := cfg.LLM.Provider
	pc := cfg.Provider(name)
	if pc.Timeout == 0 {
		pc.Timeout = cfg.LLM.Timeout
	}
	adapterOpts := []providers.AdapterOption{providers.WithDefaultTemperature(cfg.LLM.Temperature)}
	if cfg.LLM.Model != "" {
		adapterOpts = append(adapterOpts, providers.WithDefaultModel(cfg.LLM.Model))
	}
	return providers.NewBackend(name, pc, o.httpClient, adapterOpts...)
}

// abort releases what NewProvider created before returning err.
func (p *Pipeline) abort(ctx context.Context, err error) error {
	return errors.Join(err, p.Close(ctx))
}

// Close flushes buffered events and closes a cache store NewProvider opened.
// Stores passed with WithStore are left open.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.asyncSink != nil {
		if err := p.asyncSink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
	}
	if p.ownedStore != nil {
		if err := p.ownedStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of every installed layer's counters.
func (p *Pipeline) Stats() Stats {
	var s Stats
	if p.retry != nil {
		rs := p.retry.Stats()
		s.Retry = &rs
	}
	if p.breaker != nil {
		bs := p.breaker.Stats()
		s.CircuitBreaker = &bs
	}
	if p.limiter != nil {
		ls := p.limiter.Stats()
		s.RateLimit = &ls
	}
	if p.cache != nil {
		cs := p.cache.Stats()
		s.Cache = &cs
	}
	if p.cost != nil {
		bs := p.cost.Stats()
		s.Cost = &bs
	}
	if p.asyncSink != nil {
		s.DroppedEvents = p.asyncSink.Dropped()
	}
	return s
}

// CallConfig derives per-call settings from the configured defaults.
func CallConfig(cfg *configuration.Config) *transport.Config {
	if cfg == nil {
		return nil
	}
	temp := cfg.LLM.Temperature
	return &transport.Config{
		ModelName:   cfg.LLM.Model,
		Temperature: &temp,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}
