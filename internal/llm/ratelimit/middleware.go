// Package ratelimit provides a local token-bucket decorator for LLM
// providers. Each Generate and Stream call waits for a token before reaching
// the wrapped provider. A wait that cannot be satisfied surfaces as a
// transient RateLimitError so an outer retry layer may try again.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

var (
	errRateInvalid  = errors.New("requests per second must be positive")
	errBurstInvalid = errors.New("burst must be positive")
)

// Provider is the rate limiting decorator.
type Provider struct {
	next    transport.Provider
	limiter *rate.Limiter
	rps     float64
	logger  *slog.Logger

	admitted atomic.Int64
	rejected atomic.Int64
	waitedNs atomic.Int64
}

var _ transport.Provider = (*Provider)(nil)

// Stats reports limiter activity.
type Stats struct {
	Admitted  int64
	Rejected  int64
	TotalWait time.Duration
}

// Option customizes the decorator.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "ratelimit")
		}
	}
}

// New wraps next with a token bucket refilled at cfg.RequestsPerSecond
// holding at most cfg.Burst tokens.
func New(next transport.Provider, cfg configuration.RateLimitConfig, opts ...Option) (*Provider, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	p := &Provider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		rps:     cfg.RequestsPerSecond,
		logger:  slog.Default().With("component", "ratelimit"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewRateLimitMiddleware returns a Middleware applying New.
func NewRateLimitMiddleware(cfg configuration.RateLimitConfig, opts ...Option) (transport.Middleware, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return func(next transport.Provider) transport.Provider {
		p, _ := New(next, cfg, opts...)
		return p
	}, nil
}

func validate(cfg configuration.RateLimitConfig) error {
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: %v", errRateInvalid, cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		return fmt.Errorf("%w: %d", errBurstInvalid, cfg.Burst)
	}
	return nil
}

// Name forwards to the wrapped provider.
func (p *Provider) Name() string { return p.next.Name() }

// Generate waits for a token, then calls the wrapped provider.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Generate(ctx, prompt, cfg)
}

// Stream waits for a token, then opens the wrapped stream.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Stream(ctx, prompt, cfg)
}

func (p *Provider) wait(ctx context.Context) error {
	start := time.Now()
	err := p.limiter.Wait(ctx)
	p.waitedNs.Add(int64(time.Since(start)))
	if err == nil {
		p.admitted.Add(1)
		return nil
	}

	p.rejected.Add(1)
	// Caller cancellation is reported as such so it is never retried.
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	retryAfter := int(math.Ceil(1 / p.rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	p.logger.WarnContext(ctx, "rate limit wait failed", "provider", p.next.Name(), "error", err)
	return &llmerrors.RateLimitError{
		Provider:   p.next.Name(),
		RetryAfter: retryAfter,
		Limit:      p.rps,
		LocalLimit: true,
		Cause:      err,
	}
}

// Stats returns current counters.
func (p *Provider) Stats() Stats {
	return Stats{
		Admitted:  p.admitted.Load(),
		Rejected:  p.rejected.Load(),
		TotalWait: time.Duration(p.waitedNs.Load()),
	}
}
