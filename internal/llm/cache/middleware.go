// Package cache provides the caching decorator for LLM providers. Generate
// results and complete stream fragment sequences are stored under a
// fingerprint of model and prompt and replayed on later identical calls.
// Store failures degrade to a cache bypass and never fail a call.
package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// Provider is the cache decorator. Concurrent identical misses are not
// coalesced: each reaches the wrapped provider and the last write wins.
type Provider struct {
	next   transport.Provider
	store  Store
	logger *slog.Logger

	hits             atomic.Int64
	misses           atomic.Int64
	streamHits       atomic.Int64
	streamMisses     atomic.Int64
	discardedStreams atomic.Int64
	storeErrors      atomic.Int64
}

var _ transport.Provider = (*Provider)(nil)

// Option customizes the decorator.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l.With("component", "cache")
		}
	}
}

// New wraps next with caching backed by store. Decorators sharing a store
// share entries. A nil store gets a private MemoryStore.
func New(next transport.Provider, store Store, opts ...Option) *Provider {
	if store == nil {
		store = NewMemoryStore()
	}
	p := &Provider{
		next:   next,
		store:  store,
		logger: slog.Default().With("component", "cache"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewCacheMiddleware returns a Middleware applying New with store.
func NewCacheMiddleware(store Store, opts ...Option) transport.Middleware {
	if store == nil {
		store = NewMemoryStore()
	}
	return func(next transport.Provider) transport.Provider {
		return New(next, store, opts...)
	}
}

// Name forwards to the wrapped provider.
func (p *Provider) Name() string { return p.next.Name() }

// Generate returns the stored response for an identical earlier call, or
// calls the wrapped provider and stores a successful result. Errors are
// never stored.
func (p *Provider) Generate(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
	key := Fingerprint(cfg.Model(), prompt)

	cached, found, err := p.store.GetResponse(ctx, key)
	if err != nil {
		p.storeFailed(ctx, "get", key, err)
	} else if found {
		p.hits.Add(1)
		p.logger.DebugContext(ctx, "cache hit", "operation", "generate", "model", cfg.Model())
		return cached, nil
	}

	p.misses.Add(1)
	resp, err := p.next.Generate(ctx, prompt, cfg)
	if err != nil {
		return resp, err
	}
	if resp != nil {
		if err := p.store.PutResponse(ctx, key, resp.Clone()); err != nil {
			p.storeFailed(ctx, "put", key, err)
		}
	}
	return resp, nil
}

// Stream replays a stored fragment sequence, or forwards the wrapped
// provider's stream while recording it. Only a stream that reaches io.EOF
// is committed; failed or abandoned streams leave the cache untouched.
func (p *Provider) Stream(ctx context.Context, prompt string, cfg *transport.Config) (transport.TokenStream, error) {
	key := Fingerprint(cfg.Model(), prompt)

	frags, found, err := p.store.GetFragments(ctx, key)
	if err != nil {
		p.storeFailed(ctx, "get fragments", key, err)
	} else if found {
		p.streamHits.Add(1)
		p.logger.DebugContext(ctx, "cache hit", "operation", "stream", "model", cfg.Model(), "fragments", len(frags))
		return transport.NewSliceStream(frags), nil
	}

	p.streamMisses.Add(1)
	inner, err := p.next.Stream(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}
	return &recordingStream{inner: inner, p: p, ctx: ctx, key: key}, nil
}

func (p *Provider) storeFailed(ctx context.Context, op, key string, err error) {
	p.storeErrors.Add(1)
	p.logger.WarnContext(ctx, "cache store error, bypassing", "op", op, "key_length", len(key), "error", err)
}

// recordingStream forwards fragments untouched and buffers a copy.
type recordingStream struct {
	inner transport.TokenStream
	p     *Provider
	ctx   context.Context //nolint:containedctx // Commit runs when the caller reaches EOF
	key   string

	mu       sync.Mutex
	buf      []string
	finished bool
}

func (s *recordingStream) Recv() (string, error) {
	frag, err := s.inner.Recv()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return frag, err
	}

	switch {
	case err == nil:
		s.buf = append(s.buf, frag)
	case errors.Is(err, io.EOF):
		s.finished = true
		s.commit()
	default:
		s.finished = true
		s.discard("stream error")
	}
	return frag, err
}

func (s *recordingStream) Close() error {
	s.mu.Lock()
	if !s.finished {
		s.finished = true
		s.discard("closed before completion")
	}
	s.mu.Unlock()
	return s.inner.Close()
}

func (s *recordingStream) commit() {
	frags := s.buf
	if frags == nil {
		frags = []string{}
	}
	s.buf = nil
	if err := s.p.store.PutFragments(s.ctx, s.key, frags); err != nil {
		s.p.storeFailed(s.ctx, "put fragments", s.key, err)
	}
}

func (s *recordingStream) discard(reason string) {
	s.p.discardedStreams.Add(1)
	s.p.logger.DebugContext(s.ctx, "partial stream not cached", "reason", reason, "fragments", len(s.buf))
	s.buf = nil
}
