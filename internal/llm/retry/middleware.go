// Package retry provides the retry decorator for LLM providers. Non-streaming
// calls that fail with a transient error are reattempted with exponential
// backoff; streaming calls pass through untouched because fragments already
// delivered to the caller cannot be taken back.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

var (
	// Configuration validation errors.
	errMaxRetriesInvalid   = errors.New("maxRetries must be >= 0")
	errInitialDelayInvalid = errors.New("initialDelay must be greater than 0")
	errMaxDelayInvalid     = errors.New("maxDelay must be 0 or >= initialDelay")

	// ErrContextCancelledDuringRetry is returned when the caller gives up
	// while a backoff is pending. The last provider error is wrapped too.
	ErrContextCancelledDuringRetry = errors.New("context cancelled during retry backoff")
)

// Provider is the retry decorator.
type Provider struct {
	next   transport.Provider
	config configuration.RetryConfig
	logger *slog.Logger
	stats  *retryStats
}

var _ transport.Provider = (*Provider)(nil)

// Option customizes a retry Provider.
type Option func(*Provider)

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "retry")
		}
	}
}

// New wraps next with retry behavior after validating cfg.
func New(next transport.Provider, cfg configuration.RetryConfig, opts ...Option) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	p := &Provider{
		next:   next,
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		stats:  &retryStats{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewRetryMiddlewareWithConfig validates cfg and returns a Middleware that
// wraps providers with retry behavior.
func NewRetryMiddlewareWithConfig(cfg configuration.RetryConfig, opts ...Option) (transport.Middleware, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return func(next transport.Provider) transport.Provider {
		p, _ := New(next, cfg, opts...) // cfg already validated
		return p
	}, nil
}

func validateConfig(cfg configuration.RetryConfig) error {
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w, got %d", errMaxRetriesInvalid, cfg.MaxRetries)
	}
	if cfg.InitialDelay <= 0 {
		return fmt.Errorf("%w, got %v", errInitialDelayInvalid, cfg.InitialDelay)
	}
	if cfg.MaxDelay != 0 && cfg.MaxDelay < cfg.InitialDelay {
		return fmt.Errorf("%w, MaxDelay: %v, InitialDelay: %v", errMaxDelayInvalid, cfg.MaxDelay, cfg.InitialDelay)
	}
	return nil
}

// Name forwards the wrapped provider's name.
func (p *Provider) Name() string { return p.next.Name() }

// Generate calls the wrapped provider up to MaxRetries+1 times. Permanent
// errors return immediately. When retries run out the last error is returned
// exactly as the backend produced it.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		resp, err := p.next.Generate(ctx, prompt, cfg)
		p.stats.totalAttempts.Add(1)

		if err == nil {
			if attempt > 0 {
				p.stats.successfulRetries.Add(1)
				p.logger.Info("request succeeded after retry",
					"attempt", attempt+1,
					"provider", p.next.Name(),
					"model", cfg.Model())
			} else {
				p.stats.successfulFirstAttempts.Add(1)
			}
			return resp, nil
		}

		if !llmerrors.IsTransient(err) {
			p.stats.nonRetryable.Add(1)
			p.logger.Debug("non-retryable error",
				"error", err,
				"attempt", attempt+1,
				"provider", p.next.Name())
			return nil, err
		}

		lastErr = err
		if attempt == p.config.MaxRetries {
			break
		}

		backoff := p.calculateBackoff(attempt)
		p.stats.recordBackoff(backoff)
		p.logger.Warn("attempt failed, retrying",
			"attempt", attempt+1,
			"max_retries", p.config.MaxRetries,
			"backoff_ms", backoff.Milliseconds(),
			"error", err,
			"provider", p.next.Name())

		if err := sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrContextCancelledDuringRetry, err, lastErr)
		}
	}

	p.stats.exhausted.Add(1)
	return nil, lastErr
}

// Stream is never retried.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	return p.next.Stream(ctx, prompt, cfg)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
