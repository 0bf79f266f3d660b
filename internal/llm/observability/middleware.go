// Package observability provides the measurement decorator for LLM
// providers. It times every call, emits one metrics record per call (plus a
// time-to-first-token observation for streams) and never alters responses,
// fragments or errors.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

// ContentTruncationLimit caps prompt previews in logs when redaction is off.
const ContentTruncationLimit = 200

// Operation names used in records and metric tags.
const (
	OpGenerate = "generate"
	OpStream   = "stream"
)

// Record is the metrics record emitted once per call.
type Record struct {
	RequestID          string           `json:"request_id"`
	ProviderName       string           `json:"provider_name"`
	ModelName          string           `json:"model_name"`
	Operation          string           `json:"operation"`
	DurationMs         int64            `json:"duration_ms"`
	TimeToFirstTokenMs *int64           `json:"time_to_first_token_ms,omitempty"`
	Fragments          int              `json:"fragments,omitempty"`
	Usage              *transport.Usage `json:"usage,omitempty"`
	Success            bool             `json:"success"`
	Cancelled          bool             `json:"cancelled,omitempty"`
	Error              string           `json:"error,omitempty"`
	ErrorClass         llmerrors.Class  `json:"error_class,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

// FirstToken is emitted as soon as a stream produces its first fragment.
type FirstToken struct {
	RequestID          string    `json:"request_id"`
	ProviderName       string    `json:"provider_name"`
	ModelName          string    `json:"model_name"`
	TimeToFirstTokenMs int64     `json:"time_to_first_token_ms"`
	Timestamp          time.Time `json:"timestamp"`
}

// Provider is the observability decorator.
type Provider struct {
	next          transport.Provider
	name          string
	logger        *slog.Logger
	metrics       Metrics
	sink          events.EventSink
	redactPrompts bool
	now           func() time.Time
	inFlight      atomic.Int64
}

var _ transport.Provider = (*Provider)(nil)

// Option customizes the decorator.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "observability")
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithEventSink sets where records are emitted.
func WithEventSink(s events.EventSink) Option {
	return func(p *Provider) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithProviderName overrides the name reported in records.
func WithProviderName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithRedactPrompts logs prompt lengths instead of previews.
func WithRedactPrompts(redact bool) Option {
	return func(p *Provider) { p.redactPrompts = redact }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New wraps next with measurement.
func New(next transport.Provider, opts ...Option) *Provider {
	p := &Provider{
		next:          next,
		logger:        slog.Default().With("component", "observability"),
		metrics:       NewNoOpMetrics(),
		sink:          events.NewNoOpEventSink(),
		redactPrompts: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewObservabilityMiddleware returns a Middleware applying New.
func NewObservabilityMiddleware(opts ...Option) transport.Middleware {
	return func(next transport.Provider) transport.Provider {
		return New(next, opts...)
	}
}

// Name reports the configured provider name or the wrapped provider's name.
func (p *Provider) Name() string {
	if p.name != "" {
		return p.name
	}
	return p.next.Name()
}

// Generate times the wrapped call from start to resolution and emits one record.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	rec := p.begin(ctx, OpGenerate, prompt, cfg)
	start := p.now()

	resp, err := p.next.Generate(ctx, prompt, cfg)

	rec.DurationMs = p.now().Sub(start).Milliseconds()
	if resp != nil {
		rec.Usage = resp.Usage
	}
	p.finish(ctx, rec, err)
	return resp, err
}

// Stream measures time to first fragment and total stream duration.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	rec := p.begin(ctx, OpStream, prompt, cfg)
	start := p.now()

	inner, err := p.next.Stream(ctx, prompt, cfg)
	if err != nil {
		rec.DurationMs = p.now().Sub(start).Milliseconds()
		p.finish(ctx, rec, err)
		return nil, err
	}

	return &observedStream{inner: inner, p: p, ctx: ctx, rec: rec, start: start}, nil
}

func (p *Provider) begin(ctx context.Context, op, prompt string, cfg *transport.Config) *Record {
	rec := &Record{
		RequestID:    uuid.New().String(),
		ProviderName: p.Name(),
		ModelName:    cfg.Model(),
		Operation:    op,
	}

	p.metrics.IncrementCounter(MetricRequestsTotal, p.tags(rec), 1)
	p.metrics.SetGauge(MetricInFlight, nil, float64(p.inFlight.Add(1)))

	fields := []any{
		"request_id", rec.RequestID,
		"provider", rec.ProviderName,
		"model", rec.ModelName,
		"operation", op,
	}
	if p.redactPrompts {
		fields = append(fields, "prompt_length", len(prompt))
	} else {
		fields = append(fields, "prompt", truncate(prompt))
	}
	p.logger.DebugContext(ctx, "LLM call started", fields...)
	return rec
}

func (p *Provider) finish(ctx context.Context, rec *Record, err error) {
	p.metrics.SetGauge(MetricInFlight, nil, float64(p.inFlight.Add(-1)))

	rec.Timestamp = p.now().UTC()
	rec.Success = err == nil
	tags := p.tags(rec)

	p.metrics.RecordHistogram(MetricDurationMs, tags, float64(rec.DurationMs))

	fields := []any{
		"request_id", rec.RequestID,
		"provider", rec.ProviderName,
		"model", rec.ModelName,
		"operation", rec.Operation,
		"duration_ms", rec.DurationMs,
	}
	if rec.TimeToFirstTokenMs != nil {
		fields = append(fields, "ttft_ms", *rec.TimeToFirstTokenMs, "fragments", rec.Fragments)
	}

	if err != nil {
		rec.Error = err.Error()
		rec.ErrorClass = llmerrors.Classify(err)
		errTags := copyTags(tags)
		errTags["error_class"] = string(rec.ErrorClass)
		p.metrics.IncrementCounter(MetricRequestsErrors, errTags, 1)
		p.logger.ErrorContext(ctx, "LLM call failed", append(fields, "error_class", rec.ErrorClass, "error", err)...)
	} else {
		p.metrics.IncrementCounter(MetricRequestsSuccess, tags, 1)
		if rec.Usage != nil {
			p.metrics.RecordHistogram(MetricPromptTokens, tags, float64(rec.Usage.PromptTokens))
			p.metrics.RecordHistogram(MetricOutputTokens, tags, float64(rec.Usage.CompletionTokens))
			fields = append(fields,
				"prompt_tokens", rec.Usage.PromptTokens,
				"completion_tokens", rec.Usage.CompletionTokens,
				"total_tokens", rec.Usage.TotalTokens)
		}
		if rec.Cancelled {
			fields = append(fields, "cancelled", true)
		}
		p.logger.InfoContext(ctx, "LLM call completed", fields...)
	}

	eventType := events.TypeCallCompleted
	if rec.Operation == OpStream {
		eventType = events.TypeStreamCompleted
	}
	p.emit(ctx, eventType, rec)
}

func (p *Provider) firstToken(ctx context.Context, rec *Record, ttft time.Duration) {
	ms := ttft.Milliseconds()
	rec.TimeToFirstTokenMs = &ms

	p.metrics.RecordHistogram(MetricTTFTMs, p.tags(rec), float64(ms))
	p.logger.DebugContext(ctx, "time to first token",
		"request_id", rec.RequestID,
		"provider", rec.ProviderName,
		"ttft_ms", ms)
	p.emit(ctx, events.TypeStreamFirstByte, FirstToken{
		RequestID:          rec.RequestID,
		ProviderName:       rec.ProviderName,
		ModelName:          rec.ModelName,
		TimeToFirstTokenMs: ms,
		Timestamp:          p.now().UTC(),
	})
}

// emit delivers best effort; sink failures are logged only.
func (p *Provider) emit(ctx context.Context, eventType string, payload any) {
	env, err := events.NewEnvelope(eventType, "observability", payload)
	if err != nil {
		p.logger.Warn("event encoding failed", "event_type", eventType, "error", err)
		return
	}
	if err := p.sink.Append(ctx, env); err != nil {
		p.logger.Warn("event emission failed", "event_type", eventType, "error", err)
	}
}

func (p *Provider) tags(rec *Record) map[string]string {
	return map[string]string{
		"provider":  rec.ProviderName,
		"model":     rec.ModelName,
		"operation": rec.Operation,
	}
}

// observedStream forwards fragments while timing them.
type observedStream struct {
	inner transport.TokenStream
	p     *Provider
	ctx   context.Context //nolint:containedctx // Emission needs the caller's context
	rec   *Record
	start time.Time

	mu        sync.Mutex
	fragments int
	done      bool
}

func (s *observedStream) Recv() (string, error) {
	frag, err := s.inner.Recv()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return frag, err
	}

	switch {
	case err == nil:
		s.fragments++
		if s.fragments == 1 {
			s.p.firstToken(s.ctx, s.rec, s.p.now().Sub(s.start))
		}
	case errors.Is(err, io.EOF):
		s.complete(nil, false)
	default:
		s.complete(err, false)
	}
	return frag, err
}

func (s *observedStream) Close() error {
	err := s.inner.Close()

	s.mu.Lock()
	if !s.done {
		s.complete(nil, true)
	}
	s.mu.Unlock()
	return err
}

// complete must be called with s.mu held.
func (s *observedStream) complete(err error, cancelled bool) {
	s.done = true
	s.rec.Fragments = s.fragments
	s.rec.Cancelled = cancelled
	s.rec.DurationMs = s.p.now().Sub(s.start).Milliseconds()
	s.p.metrics.RecordHistogram(MetricStreamFragments, s.p.tags(s.rec), float64(s.fragments))
	s.p.finish(s.ctx, s.rec, err)
}

// truncate cuts s to at most ContentTruncationLimit bytes without
// splitting a rune.
func truncate(s string) string {
	if len(s) <= ContentTruncationLimit {
		return s
	}
	cut := ContentTruncationLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func copyTags(original map[string]string) map[string]string {
	tagsCopy := make(map[string]string, len(original))
	for k, v := range original {
		tagsCopy[k] = v
	}
	return tagsCopy
}
