package configuration

import (
	"time"
)

// Backend and call defaults.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultProvider    = ProviderOllama
	DefaultModel       = "llama3.1:latest"
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second

	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	OpenAIAPIKeyEnv       = "OPENAI_API_KEY"
	OllamaBaseURLEnv      = "OLLAMA_BASE_URL"
	ProviderEnv           = "LLM_PROVIDER"
	ModelEnv              = "LLM_MODEL"
)

// Retry constants.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
)

// Cache constants.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendSQLite = "sqlite"

	DefaultCacheKeyPrefix = "llm"
	DefaultRedisAddr      = "localhost:6379"
	DefaultSQLitePath     = ":memory:"
)

// Rate limiting constants.
const (
	DefaultRequestsPerSecond = 10
	DefaultBurstSize         = 20
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultHalfOpenProbes   = 1
	DefaultOpenTimeout      = 30 * time.Second
)

// Worker constants.
const (
	DefaultTemporalHostPort = "localhost:7233"
	DefaultNamespace        = "default"
	DefaultTaskQueue        = "llm-provider"
)

// DefaultPrices returns the built-in USD prices per million tokens.
// A fresh map is returned on every call.
func DefaultPrices() map[string]PriceConfig {
	return map[string]PriceConfig{
		"gpt-4o":        {Prompt: 5.00, Completion: 15.00},
		"gpt-4-turbo":   {Prompt: 10.00, Completion: 30.00},
		"gpt-3.5-turbo": {Prompt: 0.50, Completion: 1.50},
	}
}

// DefaultConfig returns a configuration that talks to a local Ollama with
// every decorator enabled and an in-process cache. Backend endpoints are left
// empty so ApplyEnv and the adapters can fall back to the environment.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			Timeout:     DefaultTimeout,
		},
		Providers: map[string]ProviderConfig{
			ProviderOllama: {},
			ProviderOpenAI: {APIKeyEnv: OpenAIAPIKeyEnv},
		},
		Retry: RetryConfig{
			MaxRetries:   DefaultMaxRetries,
			InitialDelay: DefaultInitialDelay,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    CacheBackendMemory,
			KeyPrefix:  DefaultCacheKeyPrefix,
			RedisAddr:  DefaultRedisAddr,
			SQLitePath: DefaultSQLitePath,
		},
		Pricing: PricingConfig{
			Enabled: true,
			Prices:  DefaultPrices(),
		},
		Observability: ObservabilityConfig{
			Enabled:       true,
			LogLevel:      "info",
			LogFormat:     "text",
			RedactPrompts: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurstSize,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			HalfOpenProbes:   DefaultHalfOpenProbes,
			OpenTimeout:      DefaultOpenTimeout,
		},
		Worker: WorkerConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultNamespace,
			TaskQueue: DefaultTaskQueue,
		},
	}
}
