package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second
)

// RedisClient is the subset of the go-redis client the store needs.
// *redis.Client satisfies it; tests substitute an in-memory fake.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// NewRedisClient connects to the server in cfg and verifies it with PING.
func NewRedisClient(ctx context.Context, cfg configuration.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: defaultPoolSize,
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// RedisStore keeps both tables in Redis as JSON values under
// "<prefix>:gen:<key>" and "<prefix>:stream:<key>".
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. A zero ttl stores entries without expiry.
func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = configuration.DefaultCacheKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) responseKey(key string) string { return r.prefix + ":gen:" + key }

func (r *RedisStore) fragmentsKey(key string) string { return r.prefix + ":stream:" + key }

func (r *RedisStore) GetResponse(ctx context.Context, key string) (*transport.Response, bool, error) {
	var resp transport.Response
	found, err := r.get(ctx, r.responseKey(key), &resp)
	if !found || err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (r *RedisStore) PutResponse(ctx context.Context, key string, resp *transport.Response) error {
	return r.set(ctx, r.responseKey(key), resp)
}

func (r *RedisStore) GetFragments(ctx context.Context, key string) ([]string, bool, error) {
	var frags []string
	found, err := r.get(ctx, r.fragmentsKey(key), &frags)
	if !found || err != nil {
		return nil, false, err
	}
	if frags == nil {
		frags = []string{}
	}
	return frags, true, nil
}

func (r *RedisStore) PutFragments(ctx context.Context, key string, fragments []string) error {
	if fragments == nil {
		fragments = []string{}
	}
	return r.set(ctx, r.fragmentsKey(key), fragments)
}

// Close closes the underlying client.
func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached value %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStore) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached value %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
