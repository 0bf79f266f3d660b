package llm

import (
	"log/slog"
	"net/http"

	"github.com/ahrav/go-llmware/internal/llm/business"
	"github.com/ahrav/go-llmware/internal/llm/cache"
	"github.com/ahrav/go-llmware/internal/llm/observability"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

// Option overrides a part NewProvider would otherwise build from configuration.
type Option func(*options)

type options struct {
	backend    transport.Provider
	store      cache.Store
	sink       events.EventSink
	metrics    observability.Metrics
	logger     *slog.Logger
	httpClient *http.Client
	prices     *business.PriceTable
}

// WithBackend uses p instead of the configured backend adapter.
func WithBackend(p transport.Provider) Option {
	return func(o *options) { o.backend = p }
}

// WithStore uses store for the cache layer. The caller keeps ownership:
// Pipeline.Close does not close an injected store.
func WithStore(store cache.Store) Option {
	return func(o *options) { o.store = store }
}

// WithEventSink sends metrics records and cost observations to sink.
func WithEventSink(sink events.EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithMetrics sets the metrics collector for the observability layer.
func WithMetrics(m observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger shared by every layer.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client backend adapters use.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithPriceTable replaces the configured prices.
func WithPriceTable(t *business.PriceTable) Option {
	return func(o *options) { o.prices = t }
}
