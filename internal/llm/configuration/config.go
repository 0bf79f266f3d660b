// Package configuration holds the settings for the provider pipeline: which
// backend to call, how each decorator behaves, and where cache entries and
// observations go. Config files are YAML with ${ENV} expansion.
package configuration

import (
	"os"
	"time"
)

// Config is the root configuration for the provider pipeline.
type Config struct {
	// Backend selection and default call settings
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Per-backend connection settings keyed by backend name
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive"`

	// Retry decorator configuration
	Retry RetryConfig `yaml:"retry"`

	// Cache decorator configuration
	Cache CacheConfig `yaml:"cache"`

	// Cost decorator configuration
	Pricing PricingConfig `yaml:"pricing"`

	// Observability decorator and logging configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Optional local rate limiting in front of the backend
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Optional circuit breaker in front of the backend
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// Temporal worker settings
	Worker WorkerConfig `yaml:"worker"`
}

// LLMConfig selects the backend and the defaults applied to each call.
type LLMConfig struct {
	Provider    string        `yaml:"provider" validate:"required,oneof=openai ollama anthropic google"`
	Model       string        `yaml:"model" validate:"required"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ProviderConfig holds connection settings for one backend.
type ProviderConfig struct {
	Endpoint  string            `yaml:"endpoint" validate:"omitempty,url"`
	APIKey    string            `yaml:"api_key"`     // Prefer api_key_env
	APIKeyEnv string            `yaml:"api_key_env"` // Environment variable holding the key
	Timeout   time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers   map[string]string `yaml:"headers"`
}

// ResolveAPIKey returns the literal key or, when empty, the value of APIKeyEnv.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// RetryConfig controls the retry decorator. Attempt n (zero based) that fails
// with a transient error waits InitialDelay * 2^n before attempt n+1.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0"`  // Retries after the first attempt
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gt=0"` // Backoff before the first retry
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gte=0"`    // Backoff cap, 0 means uncapped
}

// CacheConfig controls the cache decorator and the store behind it.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Backend       string        `yaml:"backend" validate:"oneof=memory redis sqlite"`
	KeyPrefix     string        `yaml:"key_prefix"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"` // Redis only, 0 means no expiry
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	SQLitePath    string        `yaml:"sqlite_path"`
}

// PricingConfig controls the cost decorator.
type PricingConfig struct {
	Enabled bool                   `yaml:"enabled"`
	Prices  map[string]PriceConfig `yaml:"prices" validate:"dive"`
}

// PriceConfig is the USD price per one million tokens for a model.
type PriceConfig struct {
	Prompt     float64 `yaml:"prompt" validate:"gte=0"`
	Completion float64 `yaml:"completion" validate:"gte=0"`
}

// ObservabilityConfig controls the observability decorator and logging.
type ObservabilityConfig struct {
	Enabled       bool   `yaml:"enabled"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string `yaml:"log_format" validate:"oneof=json text"`
	RedactPrompts bool   `yaml:"redact_prompts"`
	EventBuffer   int    `yaml:"event_buffer" validate:"gte=0"` // 0 emits synchronously
}

// RateLimitConfig controls the local token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// CircuitBreakerConfig configures the breaker that stops calling a failing
// backend. Only transient failures count toward FailureThreshold.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int           `yaml:"success_threshold" validate:"gte=0"`
	HalfOpenProbes   int           `yaml:"half_open_probes" validate:"gte=0"`
	OpenTimeout      time.Duration `yaml:"open_timeout" validate:"gte=0"`
	Adaptive         bool          `yaml:"adaptive"` // Lower the threshold while the error rate is high
}

// WorkerConfig locates the Temporal frontend used by the worker command.
type WorkerConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}
