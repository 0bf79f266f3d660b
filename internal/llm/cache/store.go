package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// ErrUnknownBackend is returned by NewStore for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store holds the two cache tables. Generate results and stream fragment
// sequences live in separate tables even when their keys collide.
// Reads report found=false on a miss; err is reserved for store failures.
type Store interface {
	GetResponse(ctx context.Context, key string) (*transport.Response, bool, error)
	PutResponse(ctx context.Context, key string, resp *transport.Response) error
	GetFragments(ctx context.Context, key string) ([]string, bool, error)
	PutFragments(ctx context.Context, key string, fragments []string) error
	Close() error
}

// NewStore builds the store selected by cfg.Backend.
// An empty backend selects the in-memory store.
func NewStore(ctx context.Context, cfg configuration.CacheConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", configuration.CacheBackendMemory:
		return NewMemoryStore(), nil

	case configuration.CacheBackendRedis:
		client, err := NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil

	case configuration.CacheBackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)

	default:
		logger.Error("unsupported cache backend", "backend", cfg.Backend)
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
