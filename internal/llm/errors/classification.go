package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Class is the coarse retry classification of a backend failure.
type Class string

const (
	// ClassNone is returned for a nil error.
	ClassNone Class = ""
	// ClassTransient covers HTTP 429, HTTP 5xx and network failures.
	ClassTransient Class = "transient"
	// ClassPermanent covers every other backend rejection.
	ClassPermanent Class = "permanent"
	// ClassStreamIntegrity covers streams that failed partway.
	ClassStreamIntegrity Class = "stream_integrity"
)

// statusCoder is implemented by foreign errors that expose an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Classify places err into the transient, permanent or stream integrity class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var sie *StreamIntegrityError
	if errors.As(err, &sie) {
		return ClassStreamIntegrity
	}
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}

// IsTransient reports whether err is worth retrying: HTTP 429, HTTP 5xx,
// a network or connection failure, a deadline, or a local rate limit.
// Caller cancellation and partial stream failures are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sie *StreamIntegrityError
	if errors.As(err, &sie) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return isNetworkError(err)
}

// IsNetworkError reports whether err looks like a connection level failure.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return isNetworkError(err)
}

// isNetworkError checks typed net errors before falling back to message
// fragments for wrapped or foreign errors.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return true
		}
		return isNetworkErrorByString(urlErr.Err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return isNetworkErrorByString(err.Error())
}

// networkErrorIndicators are pre-lowercased message fragments.
var networkErrorIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"unexpected eof",
}

func isNetworkErrorByString(errStr string) bool {
	lowered := strings.ToLower(errStr)
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}

// ClassifyStatus determines ErrorType from an HTTP status and an optional
// provider error code. Codes take precedence over the status.
func ClassifyStatus(statusCode int, errorCode string) ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit"):
		return ErrorTypeRateLimit
	case strings.Contains(lowerCode, "quota"):
		return ErrorTypeQuota
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "api_key"):
		return ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return ErrorTypePermission
	case strings.Contains(lowerCode, "model_not_found"):
		return ErrorTypeNotFound
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return ErrorTypeAuth
	case http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	}
	if statusCode >= http.StatusInternalServerError {
		return ErrorTypeProvider
	}
	return ErrorTypeUnknown
}

// ClassifyLLMError converts err into a WorkflowError with an explicit retry
// decision matching IsTransient.
func ClassifyLLMError(err error) *WorkflowError {
	if err == nil {
		return nil
	}

	wf := &WorkflowError{
		Type:      ErrorTypeUnknown,
		Class:     Classify(err),
		Message:   err.Error(),
		Retryable: IsTransient(err),
		Cause:     err,
	}

	var providerErr *ProviderError
	var sie *StreamIntegrityError
	var rateLimitErr *RateLimitError
	switch {
	case errors.As(err, &sie):
		wf.Type = ErrorTypeStreamIntegrity
		wf.Code = "STREAM_INTERRUPTED"
		wf.Details = map[string]any{"provider": sie.Provider, "fragments": sie.Fragments}
	case errors.As(err, &rateLimitErr):
		wf.Type = ErrorTypeRateLimit
		wf.Code = "RATE_LIMIT"
		wf.Details = map[string]any{"provider": rateLimitErr.Provider, "retry_after": rateLimitErr.RetryAfter}
	case errors.As(err, &providerErr):
		wf.Type = providerErr.Type
		wf.Code = providerErr.Code
		wf.Message = providerErr.Message
		wf.Details = map[string]any{
			"provider":    providerErr.Provider,
			"status_code": providerErr.StatusCode,
		}
	case errors.Is(err, context.DeadlineExceeded):
		wf.Type = ErrorTypeTimeout
		wf.Code = "TIMEOUT"
	case wf.Retryable:
		wf.Type = ErrorTypeNetwork
		wf.Code = "NETWORK_ERROR"
	}

	return wf
}
