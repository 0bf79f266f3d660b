package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

var errInvalidConfig = errors.New("circuit breaker thresholds and probes must be positive")

// Provider is the circuit breaking decorator. Rejected calls fail with a
// non-retryable ProviderError wrapping ErrCircuitOpen, so a surrounding
// retry layer stops instead of spinning against an open breaker.
type Provider struct {
	next transport.Provider
	b    *breaker
}

var _ transport.Provider = (*Provider)(nil)

// Option customizes the decorator.
type Option func(*Provider)

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.b.logger = l.With("component", "circuitbreaker")
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.b.now = now
		}
	}
}

// WithoutJitter makes the open period exactly OpenTimeout.
func WithoutJitter() Option {
	return func(p *Provider) { p.b.jitter = false }
}

// New wraps next with a breaker configured by cfg. The Enabled flag is not
// consulted; callers decide whether to install the layer.
func New(next transport.Provider, cfg configuration.CircuitBreakerConfig, opts ...Option) (*Provider, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	p := &Provider{
		next: next,
		b: &breaker{
			failureThreshold: cfg.FailureThreshold,
			successThreshold: cfg.SuccessThreshold,
			openTimeout:      cfg.OpenTimeout,
			maxProbes:        cfg.HalfOpenProbes,
			jitter:           true,
			counters:         &counters{},
			now:              time.Now,
			logger:           slog.Default().With("component", "circuitbreaker"),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.Adaptive {
		p.b.adaptive = newAdaptiveThreshold(cfg.FailureThreshold, p.b.now)
	}
	p.b.state.Store(int32(StateClosed))
	return p, nil
}

// NewCircuitBreakerMiddleware returns a Middleware applying New.
func NewCircuitBreakerMiddleware(cfg configuration.CircuitBreakerConfig, opts ...Option) (transport.Middleware, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return func(next transport.Provider) transport.Provider {
		p, _ := New(next, cfg, opts...)
		return p
	}, nil
}

func validate(cfg configuration.CircuitBreakerConfig) error {
	if cfg.FailureThreshold <= 0 || cfg.SuccessThreshold <= 0 || cfg.HalfOpenProbes <= 0 {
		return fmt.Errorf("%w: failure=%d success=%d probes=%d", errInvalidConfig,
			cfg.FailureThreshold, cfg.SuccessThreshold, cfg.HalfOpenProbes)
	}
	return nil
}

// Name forwards to the wrapped provider.
func (p *Provider) Name() string { return p.next.Name() }

// State returns the current breaker position.
func (p *Provider) State() State { return p.b.current() }

// Generate calls the wrapped provider if the breaker admits the call.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	adm := p.b.allow()
	if !adm.allowed {
		return nil, p.rejected()
	}
	defer adm.release()

	resp, err := p.next.Generate(ctx, prompt, cfg)
	p.observe(err)
	return resp, err
}

// Stream opens the wrapped stream if the breaker admits the call. The
// outcome is recorded when the stream ends; closing early records nothing.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	adm := p.b.allow()
	if !adm.allowed {
		return nil, p.rejected()
	}

	stream, err := p.next.Stream(ctx, prompt, cfg)
	if err != nil {
		p.observe(err)
		adm.release()
		return nil, err
	}

	var once sync.Once
	settle := func(err error, record bool) {
		once.Do(func() {
			if record {
				p.observe(err)
			}
			adm.release()
		})
	}
	return transport.NewFuncStream(
		func() (string, error) {
			frag, err := stream.Recv()
			switch {
			case err == nil:
			case errors.Is(err, io.EOF):
				settle(nil, true)
			default:
				settle(err, true)
			}
			return frag, err
		},
		func() error {
			settle(nil, false)
			return stream.Close()
		},
	), nil
}

// observe feeds a call outcome into the breaker. Transient failures and
// broken streams count against the backend; caller cancellation and
// permanent rejections such as bad requests count as neither.
func (p *Provider) observe(err error) {
	switch {
	case err == nil:
		p.b.success()
	case errors.Is(err, context.Canceled):
		// Neutral, including streams the caller abandoned partway.
	case llmerrors.IsTransient(err), llmerrors.Classify(err) == llmerrors.ClassStreamIntegrity:
		p.b.failure()
	}
}

func (p *Provider) rejected() error {
	return &llmerrors.ProviderError{
		Provider: p.next.Name(),
		Code:     "CIRCUIT_OPEN",
		Message:  "circuit breaker is " + p.b.current().String(),
		Type:     llmerrors.ErrorTypeCircuitBreaker,
		Cause:    llmerrors.ErrCircuitOpen,
	}
}
