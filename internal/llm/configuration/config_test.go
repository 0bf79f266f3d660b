package configuration_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
)

// TestDefaultConfig verifies the defaults are valid and mirror the
// documented out-of-the-box behavior: local Ollama, memory cache.
func TestDefaultConfig(t *testing.T) {
	cfg := configuration.DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.1:latest", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, configuration.CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, configuration.PriceConfig{Prompt: 5, Completion: 15}, cfg.Pricing.Prices["gpt-4o"])
}

// TestDefaultPrices_FreshMap verifies callers cannot mutate shared defaults.
func TestDefaultPrices_FreshMap(t *testing.T) {
	a := configuration.DefaultPrices()
	a["gpt-4o"] = configuration.PriceConfig{}
	assert.Equal(t, 5.0, configuration.DefaultPrices()["gpt-4o"].Prompt)
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")

	data := []byte(`
llm:
  provider: openai
  model: gpt-4o
  temperature: 0.2
  max_tokens: 256
  timeout: 10s
providers:
  openai:
    api_key: ${TEST_OPENAI_KEY}
retry:
  max_retries: 2
  initial_delay: 250ms
  max_delay: 2s
cache:
  backend: sqlite
  sqlite_path: ":memory:"
pricing:
  prices:
    my-model:
      prompt: 1.5
      completion: 2.5
observability:
  log_level: debug
  log_format: json
`)

	cfg, err := configuration.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 256, cfg.LLM.MaxTokens)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-from-env", cfg.Provider("openai").ResolveAPIKey())
	assert.Equal(t, configuration.DefaultOpenAIEndpoint, cfg.Provider("openai").Endpoint)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, configuration.CacheBackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, configuration.PriceConfig{Prompt: 1.5, Completion: 2.5}, cfg.Pricing.Prices["my-model"])
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

// TestApplyEnv verifies environment fallbacks fill only unset values.
func TestApplyEnv(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.internal:11434")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_MODEL", "gpt-4-turbo")

	cfg := configuration.DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4-turbo", cfg.LLM.Model)
	assert.Equal(t, "http://ollama.internal:11434", cfg.Provider("ollama").Endpoint)

	cfg = configuration.DefaultConfig()
	cfg.Providers["ollama"] = configuration.ProviderConfig{Endpoint: "http://explicit:1"}
	cfg.ApplyEnv()
	assert.Equal(t, "http://explicit:1", cfg.Provider("ollama").Endpoint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*configuration.Config)
	}{
		{"unknown provider", func(c *configuration.Config) { c.LLM.Provider = "bard" }},
		{"missing model", func(c *configuration.Config) { c.LLM.Model = "" }},
		{"temperature too high", func(c *configuration.Config) { c.LLM.Temperature = 2.5 }},
		{"negative retries", func(c *configuration.Config) { c.Retry.MaxRetries = -1 }},
		{"zero delay", func(c *configuration.Config) { c.Retry.InitialDelay = 0 }},
		{"max delay below initial", func(c *configuration.Config) { c.Retry.MaxDelay = time.Millisecond }},
		{"unknown cache backend", func(c *configuration.Config) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *configuration.Config) {
			c.Cache.Backend = configuration.CacheBackendRedis
			c.Cache.RedisAddr = ""
		}},
		{"negative price", func(c *configuration.Config) {
			c.Pricing.Prices["bad"] = configuration.PriceConfig{Prompt: -1}
		}},
		{"bad log format", func(c *configuration.Config) { c.Observability.LogFormat = "xml" }},
		{"rate limit without rate", func(c *configuration.Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}},
		{"breaker without threshold", func(c *configuration.Config) {
			c.CircuitBreaker.Enabled = true
			c.CircuitBreaker.FailureThreshold = 0
		}},
		{"bad endpoint", func(c *configuration.Config) {
			c.Providers["ollama"] = configuration.ProviderConfig{Endpoint: "not a url"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configuration.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, configuration.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")

	path := filepath.Join(t.TempDir(), "llm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: ollama\n  model: mistral\n"), 0o600))

	cfg, err := configuration.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, configuration.DefaultMaxRetries, cfg.Retry.MaxRetries, "unset sections keep defaults")

	_, err = configuration.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm: [unclosed"), 0o600))
	_, err = configuration.Load(bad)
	require.Error(t, err)
}

// TestMarshal_MasksSecrets verifies printed configs never leak keys.
func TestMarshal_MasksSecrets(t *testing.T) {
	cfg := configuration.DefaultConfig()
	cfg.Providers["openai"] = configuration.ProviderConfig{APIKey: "sk-secret"}
	cfg.Cache.RedisPassword = "hunter2"

	out, err := cfg.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-secret")
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "provider: ollama")
	assert.Equal(t, "sk-secret", cfg.Providers["openai"].APIKey, "original config untouched")
}
