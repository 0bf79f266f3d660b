package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-llmware/internal/llm"
	"github.com/ahrav/go-llmware/internal/llm/business"
	"github.com/ahrav/go-llmware/internal/llm/cache"
	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/observability"
	"github.com/ahrav/go-llmware/internal/llm/providers"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyBackend fails its first failFirst Generate calls with a 503.
type flakyBackend struct {
	failFirst int32
	calls     atomic.Int32
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Generate(_ context.Context, prompt string, _ *transport.Config) (*transport.Response, error) {
	if f.calls.Add(1) <= f.failFirst {
		return nil, &llmerrors.ProviderError{Provider: "flaky", StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	}
	return &transport.Response{
		Text:  "echo: " + prompt,
		Usage: &transport.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
	}, nil
}

func (f *flakyBackend) Stream(context.Context, string, *transport.Config) (transport.TokenStream, error) {
	f.calls.Add(1)
	return transport.NewSliceStream([]string{"a", "b", "c"}), nil
}

func testConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	cfg.LLM.Model = "gpt-4o"
	cfg.Retry = configuration.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond}
	return cfg
}

// TestNewProvider_FullPipeline walks a call through every layer: the first
// Generate survives one transient failure through Retry and is cached; the
// second is a cache hit that never reaches the backend yet is still priced.
func TestNewProvider_FullPipeline(t *testing.T) {
	backend := &flakyBackend{failFirst: 1}
	sink := events.NewMemorySink()
	metrics := observability.NewRecorder()

	p, err := llm.NewProvider(context.Background(), testConfig(),
		llm.WithBackend(backend),
		llm.WithEventSink(sink),
		llm.WithMetrics(metrics),
		llm.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	assert.Equal(t, "flaky", p.Name())

	callCfg := &transport.Config{ModelName: "gpt-4o"}
	first, err := p.Generate(context.Background(), "hello", callCfg)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", first.Text)
	assert.Equal(t, int32(2), backend.calls.Load())

	second, err := p.Generate(context.Background(), "hello", callCfg)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int32(2), backend.calls.Load(), "cache hit must not reach the backend")

	stats := p.Stats()
	require.NotNil(t, stats.Retry)
	assert.Equal(t, int64(1), stats.Retry.SuccessfulRetries)
	require.NotNil(t, stats.Cache)
	assert.Equal(t, int64(1), stats.Cache.Hits)
	assert.Equal(t, int64(1), stats.Cache.Misses)
	require.NotNil(t, stats.Cost)
	assert.Equal(t, int64(2), stats.Cost.Observations)
	assert.InDelta(t, 0.025, stats.Cost.TotalUSD, 1e-9)
	assert.Nil(t, stats.RateLimit)
	assert.Nil(t, stats.CircuitBreaker)

	costs := sink.ByType(events.TypeCostEstimated)
	require.Len(t, costs, 2)
	var obs business.CostObservation
	require.NoError(t, costs[0].Decode(&obs))
	assert.Equal(t, "gpt-4o", obs.RequestModel)
	assert.InDelta(t, 0.0125, obs.CostUSD, 1e-9)

	calls := sink.ByType(events.TypeCallCompleted)
	require.Len(t, calls, 2)
	var rec observability.Record
	require.NoError(t, calls[0].Decode(&rec))
	assert.True(t, rec.Success)
	assert.Equal(t, "flaky", rec.ProviderName)
}

func TestNewProvider_StreamThroughPipeline(t *testing.T) {
	backend := &flakyBackend{}
	sink := events.NewMemorySink()
	p, err := llm.NewProvider(context.Background(), testConfig(),
		llm.WithBackend(backend), llm.WithEventSink(sink), llm.WithLogger(discardLogger()))
	require.NoError(t, err)

	for range 2 {
		stream, err := p.Stream(context.Background(), "s", nil)
		require.NoError(t, err)
		got, err := transport.Collect(stream)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, got)
	}
	assert.Equal(t, int32(1), backend.calls.Load(), "second stream replays from cache")
	assert.Len(t, sink.ByType(events.TypeStreamCompleted), 2)
	assert.Empty(t, sink.ByType(events.TypeCostEstimated), "streams are not priced")
}

// TestNewProvider_DisabledLayers verifies only Retry remains when every
// optional layer is switched off.
func TestNewProvider_DisabledLayers(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = false
	cfg.Observability.Enabled = false
	cfg.Pricing.Enabled = false

	backend := &flakyBackend{}
	sink := events.NewMemorySink()
	p, err := llm.NewProvider(context.Background(), cfg,
		llm.WithBackend(backend), llm.WithEventSink(sink), llm.WithLogger(discardLogger()))
	require.NoError(t, err)

	for range 2 {
		_, err = p.Generate(context.Background(), "x", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), backend.calls.Load())
	assert.Empty(t, sink.Events())

	stats := p.Stats()
	assert.NotNil(t, stats.Retry)
	assert.Nil(t, stats.Cache)
	assert.Nil(t, stats.Cost)
}

func TestNewProvider_OptionalLayers(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.CircuitBreaker.Enabled = true

	p, err := llm.NewProvider(context.Background(), cfg,
		llm.WithBackend(&flakyBackend{failFirst: 1}), llm.WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", nil)
	require.NoError(t, err)

	stats := p.Stats()
	require.NotNil(t, stats.RateLimit)
	assert.Equal(t, int64(2), stats.RateLimit.Admitted, "each retry attempt takes a token")
	require.NotNil(t, stats.CircuitBreaker)
	assert.Equal(t, "closed", stats.CircuitBreaker.State)
	assert.Equal(t, int64(2), stats.CircuitBreaker.Allowed)
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := llm.NewProvider(context.Background(), nil)
	require.ErrorIs(t, err, llm.ErrNilConfig)

	cfg := testConfig()
	cfg.LLM.Provider = "anthropic"
	_, err = llm.NewProvider(context.Background(), cfg, llm.WithLogger(discardLogger()))
	require.ErrorIs(t, err, providers.ErrUnsupportedProvider)

	cfg = testConfig()
	cfg.Retry.InitialDelay = 0
	_, err = llm.NewProvider(context.Background(), cfg,
		llm.WithBackend(&flakyBackend{}), llm.WithLogger(discardLogger()))
	require.Error(t, err)

	cfg = testConfig()
	cfg.Cache.Backend = "memcached"
	_, err = llm.NewProvider(context.Background(), cfg,
		llm.WithBackend(&flakyBackend{}), llm.WithLogger(discardLogger()))
	require.ErrorIs(t, err, cache.ErrUnknownBackend)
}

// TestNewProvider_ConfiguredBackend verifies the adapter is built from the
// provider section with the configured model and client.
func TestNewProvider_ConfiguredBackend(t *testing.T) {
	var model atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		model.Store(body["model"])
		_, _ = io.WriteString(w, `{"response":"pong","done":true,"prompt_eval_count":3,"eval_count":1}`)
	}))
	defer srv.Close()

	cfg := configuration.DefaultConfig()
	cfg.Providers[configuration.ProviderOllama] = configuration.ProviderConfig{Endpoint: srv.URL}

	p, err := llm.NewProvider(context.Background(), cfg,
		llm.WithHTTPClient(srv.Client()), llm.WithLogger(discardLogger()))
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close(context.Background())) }()
	assert.Equal(t, providers.ProviderOllama, p.Name())

	resp, err := p.Generate(context.Background(), "ping", llm.CallConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text)
	assert.Equal(t, configuration.DefaultModel, model.Load())
}

func TestNewProvider_SQLiteCacheAndAsyncEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = configuration.CacheBackendSQLite
	cfg.Cache.SQLitePath = ":memory:"
	cfg.Observability.EventBuffer = 16

	backend := &flakyBackend{}
	sink := events.NewMemorySink()
	p, err := llm.NewProvider(context.Background(), cfg,
		llm.WithBackend(backend), llm.WithEventSink(sink), llm.WithLogger(discardLogger()))
	require.NoError(t, err)

	for range 3 {
		_, err = p.Generate(context.Background(), "q", &transport.Config{ModelName: "gpt-4o"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.calls.Load())

	require.NoError(t, p.Close(context.Background()))
	assert.Len(t, sink.ByType(events.TypeCallCompleted), 3)
	assert.Len(t, sink.ByType(events.TypeCostEstimated), 3)
	assert.Zero(t, p.Stats().DroppedEvents)
}

func TestNewProvider_InjectedStoreAndPrices(t *testing.T) {
	store := cache.NewMemoryStore()
	table := business.NewPriceTable(map[string]business.PriceEntry{
		"house-model": {PromptPerMillion: 1, CompletionPerMillion: 2},
	})

	p, err := llm.NewProvider(context.Background(), testConfig(),
		llm.WithBackend(&flakyBackend{}), llm.WithStore(store), llm.WithPriceTable(table),
		llm.WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "z", &transport.Config{ModelName: "house-model"})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "z", &transport.Config{ModelName: "gpt-4o"})
	require.NoError(t, err)

	responses, _ := store.Len()
	assert.Equal(t, 2, responses)
	assert.Equal(t, int64(1), p.Stats().Cost.Observations)
	assert.Equal(t, int64(1), p.Stats().Cost.Skipped, "gpt-4o is not in the injected table")
	require.NoError(t, p.Close(context.Background()))
}

// tracer records the order in which layers see a call.
type tracer struct {
	mu    sync.Mutex
	order []string
}

func (tr *tracer) layer(name string) transport.Middleware {
	return func(next transport.Provider) transport.Provider {
		return &transport.Funcs{
			ProviderName: next.Name(),
			GenerateFn: func(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
				tr.mu.Lock()
				tr.order = append(tr.order, name)
				tr.mu.Unlock()
				return next.Generate(ctx, prompt, cfg)
			},
		}
	}
}

func TestCompose_Order(t *testing.T) {
	tr := &tracer{}
	backend := &transport.Funcs{
		ProviderName: "backend",
		GenerateFn: func(context.Context, string, *transport.Config) (*transport.Response, error) {
			tr.mu.Lock()
			tr.order = append(tr.order, "backend")
			tr.mu.Unlock()
			return &transport.Response{Text: "ok"}, nil
		},
	}

	p := llm.Compose(backend, llm.Stack{
		Retry:          tr.layer("retry"),
		CircuitBreaker: tr.layer("breaker"),
		RateLimit:      tr.layer("ratelimit"),
		Cache:          tr.layer("cache"),
		Observability:  tr.layer("observability"),
		Cost:           tr.layer("cost"),
	})
	_, err := p.Generate(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cost", "observability", "cache", "retry", "breaker", "ratelimit", "backend"}, tr.order)

	tr.order = nil
	p = llm.Compose(backend, llm.Stack{Cache: tr.layer("cache")})
	_, err = p.Generate(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "backend"}, tr.order)
}

func TestCallConfig(t *testing.T) {
	assert.Nil(t, llm.CallConfig(nil))

	cfg := configuration.DefaultConfig()
	cfg.LLM.MaxTokens = 256
	cc := llm.CallConfig(cfg)
	assert.Equal(t, configuration.DefaultModel, cc.ModelName)
	assert.Equal(t, 256, cc.MaxTokens)
	require.NotNil(t, cc.Temperature)
	assert.InDelta(t, configuration.DefaultTemperature, *cc.Temperature, 1e-9)
}
