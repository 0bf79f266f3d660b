package business

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

// CostObservation is the estimate emitted after a successful Generate.
type CostObservation struct {
	RequestModel     string    `json:"request_model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	Timestamp        time.Time `json:"timestamp"`
}

// Stats counts what the decorator has done.
type Stats struct {
	Observations int64   `json:"observations"`
	Skipped      int64   `json:"skipped"`
	TotalUSD     float64 `json:"total_usd"`
}

// Provider is the cost decorator. It never alters the wrapped response.
type Provider struct {
	next   transport.Provider
	table  *PriceTable
	logger *slog.Logger
	sink   events.EventSink
	now    func() time.Time

	observations atomic.Int64
	skipped      atomic.Int64
	totalNanos   atomic.Int64 // nano-dollars, rounded per call
}

var _ transport.Provider = (*Provider)(nil)

// Option customizes the decorator.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "cost")
		}
	}
}

// WithEventSink sets where observations are emitted.
func WithEventSink(s events.EventSink) Option {
	return func(p *Provider) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithClock replaces time.Now for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New wraps next with cost estimation against table.
// A nil table disables estimation.
func New(next transport.Provider, table *PriceTable, opts ...Option) *Provider {
	p := &Provider{
		next:   next,
		table:  table,
		logger: slog.Default().With("component", "cost"),
		sink:   events.NewNoOpEventSink(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewCostMiddleware returns a Middleware applying New.
func NewCostMiddleware(table *PriceTable, opts ...Option) transport.Middleware {
	return func(next transport.Provider) transport.Provider {
		return New(next, table, opts...)
	}
}

// Name forwards to the wrapped provider.
func (p *Provider) Name() string { return p.next.Name() }

// Generate calls the wrapped provider and, on success with a priced model
// and reported usage, emits one CostObservation.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	resp, err := p.next.Generate(ctx, prompt, cfg)
	if err != nil {
		return resp, err
	}

	model := cfg.Model()
	entry, ok := p.table.Lookup(model)
	if !ok || resp == nil || resp.Usage == nil {
		p.skipped.Add(1)
		return resp, nil
	}

	obs := CostObservation{
		RequestModel:     model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostUSD:          entry.Cost(*resp.Usage),
		Timestamp:        p.now().UTC(),
	}
	p.record(ctx, obs)
	return resp, nil
}

// Stream is a passthrough; streamed fragments carry no usage.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	return p.next.Stream(ctx, prompt, cfg)
}

func (p *Provider) record(ctx context.Context, obs CostObservation) {
	p.observations.Add(1)
	p.totalNanos.Add(int64(math.Round(obs.CostUSD * 1e9)))

	p.logger.InfoContext(ctx, fmt.Sprintf("Est. Cost: $%.6f", obs.CostUSD),
		"model", obs.RequestModel,
		"prompt_tokens", obs.PromptTokens,
		"completion_tokens", obs.CompletionTokens)

	env, err := events.NewEnvelope(events.TypeCostEstimated, "cost", obs)
	if err != nil {
		p.logger.Warn("event encoding failed", "error", err)
		return
	}
	if err := p.sink.Append(ctx, env); err != nil {
		p.logger.Warn("event emission failed", "event_type", env.Type, "error", err)
	}
}

// Stats returns a snapshot of the decorator counters.
func (p *Provider) Stats() Stats {
	return Stats{
		Observations: p.observations.Load(),
		Skipped:      p.skipped.Load(),
		TotalUSD:     float64(p.totalNanos.Load()) / 1e9,
	}
}
