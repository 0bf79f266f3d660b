package configuration

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads a YAML config file, expands environment variables, overlays
// it on DefaultConfig, applies environment fallbacks and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills unset values from the environment. Explicit config wins over
// OPENAI_API_KEY and OLLAMA_BASE_URL; LLM_PROVIDER and LLM_MODEL override.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(ProviderEnv); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(ModelEnv); v != "" {
		c.LLM.Model = v
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	ollama := c.Providers[ProviderOllama]
	if ollama.Endpoint == "" {
		ollama.Endpoint = os.Getenv(OllamaBaseURLEnv)
	}
	if ollama.Endpoint == "" {
		ollama.Endpoint = DefaultOllamaEndpoint
	}
	c.Providers[ProviderOllama] = ollama

	openai := c.Providers[ProviderOpenAI]
	if openai.Endpoint == "" {
		openai.Endpoint = DefaultOpenAIEndpoint
	}
	if openai.APIKeyEnv == "" {
		openai.APIKeyEnv = OpenAIAPIKeyEnv
	}
	c.Providers[ProviderOpenAI] = openai
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("%w: retry.max_delay %v is below retry.initial_delay %v",
			ErrInvalidConfig, c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: rate_limit requires positive requests_per_second and burst", ErrInvalidConfig)
	}
	cb := c.CircuitBreaker
	if cb.Enabled && (cb.FailureThreshold <= 0 || cb.SuccessThreshold <= 0 || cb.HalfOpenProbes <= 0) {
		return fmt.Errorf("%w: circuit_breaker requires positive thresholds and half_open_probes", ErrInvalidConfig)
	}
	return nil
}

// Provider returns the connection settings for name, or a zero value.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// Marshal renders the configuration as YAML. Secrets are masked.
func (c *Config) Marshal() ([]byte, error) {
	masked := *c
	masked.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = "****"
		}
		masked.Providers[name] = p
	}
	if masked.Cache.RedisPassword != "" {
		masked.Cache.RedisPassword = "****"
	}
	return yaml.Marshal(&masked)
}
