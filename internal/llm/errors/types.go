// Package errors defines the error taxonomy shared by LLM backends and the
// decorators that wrap them. Backends report failures as ProviderError or
// StreamIntegrityError; decorators classify them with Classify and
// IsTransient but never rewrite them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType categorizes a backend failure.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the backend rejected the request body.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeNotFound indicates an unknown model or endpoint.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeCircuitBreaker indicates the breaker rejected the call without
	// reaching the backend (non-retryable).
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"

	// ErrorTypeStreamIntegrity indicates a stream failed after it started.
	ErrorTypeStreamIntegrity ErrorType = "stream_integrity"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common LLM operation errors.
var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnknownProvider indicates an unknown or unsupported provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned an invalid response.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrCircuitOpen indicates the circuit breaker rejected a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMissingAPIKey indicates a hosted backend was called without credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// ProviderError captures a failed backend call. StatusCode is zero when no
// HTTP response was received, in which case Type and Cause describe the
// failure.
type ProviderError struct {
	Provider   string    `json:"provider"`    // Provider name
	StatusCode int       `json:"status_code"` // HTTP status code, 0 if none
	Message    string    `json:"message"`     // Error message
	Code       string    `json:"code"`        // Provider error code
	Type       ErrorType `json:"type"`        // Classified error type
	RetryAfter int       `json:"retry_after"` // Retry-After header value in seconds
	Cause      error     `json:"-"`
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failure is transient. With an HTTP status
// only 429 and 5xx qualify. Without one, network, timeout, rate limit and
// availability failures qualify.
func (e *ProviderError) IsRetryable() bool {
	if e.StatusCode != 0 {
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	}
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	}
	return e.Cause != nil && isNetworkError(e.Cause)
}

// GetRetryAfter returns the server supplied backoff hint.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// StreamIntegrityError reports a stream that failed after it began producing
// fragments. Partial output must not be treated as a complete answer.
type StreamIntegrityError struct {
	Provider  string `json:"provider"`
	Fragments int    `json:"fragments"` // Fragments delivered before the failure
	Cause     error  `json:"-"`
}

// Error describes how far the stream got.
func (e *StreamIntegrityError) Error() string {
	return fmt.Sprintf("%s stream interrupted after %d fragments: %v", e.Provider, e.Fragments, e.Cause)
}

// Unwrap returns the read error that ended the stream.
func (e *StreamIntegrityError) Unwrap() error { return e.Cause }

// RateLimitError is produced by the local limiter when a caller cannot be
// admitted before its context expires.
type RateLimitError struct {
	Provider   string  `json:"provider"`
	RetryAfter int     `json:"retry_after"` // Seconds to wait before retry
	Limit      float64 `json:"limit"`       // Requests per second
	LocalLimit bool    `json:"local_limit"` // Whether this is a local limit
	Cause      error   `json:"-"`
}

// Error returns formatted rate limit error with retry guidance.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// Unwrap returns the limiter error.
func (e *RateLimitError) Unwrap() error { return e.Cause }

// Is matches ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// WorkflowError carries classification for workflow engines that need an
// explicit retry decision.
type WorkflowError struct {
	Type      ErrorType      `json:"type"`
	Class     Class          `json:"class"`
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details"`
	Cause     error          `json:"-"`
}

// Error returns formatted error string with type and code context.
func (e *WorkflowError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *WorkflowError) Unwrap() error { return e.Cause }

// ShouldRetry returns the retry recommendation.
func (e *WorkflowError) ShouldRetry() bool { return e.Retryable }
