package activity

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"

	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
)

// ErrInvalidInput is wrapped by validation failures. Such errors are
// non-retryable.
var ErrInvalidInput = errors.New("invalid activity input")

// nonRetryable wraps cause as a Temporal application error that the server
// will not retry.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps cause as a retryable Temporal application error. A
// positive delay overrides the activity retry policy's next interval.
func retryable(tag string, cause error, msg string, delay time.Duration) error {
	if delay <= 0 {
		return temporal.NewApplicationError(msg, tag, cause)
	}
	return temporal.NewApplicationErrorWithOptions(msg, tag, temporal.ApplicationErrorOptions{
		Cause:          cause,
		NextRetryDelay: delay,
	})
}

// classify maps a provider failure onto Temporal retry semantics. Transient
// failures are retryable, honoring a server supplied Retry-After; everything
// else, including stream integrity failures and cancellation, is not.
func classify(tag string, err error) error {
	wfErr := llmerrors.ClassifyLLMError(err)
	if wfErr == nil {
		return nil
	}
	if wfErr.ShouldRetry() {
		return retryable(tag, err, wfErr.Message, retryAfter(err))
	}
	return nonRetryable(tag, err, wfErr.Message)
}

func retryAfter(err error) time.Duration {
	var pe *llmerrors.ProviderError
	if errors.As(err, &pe) {
		return pe.GetRetryAfter()
	}
	var rle *llmerrors.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return time.Duration(rle.RetryAfter) * time.Second
	}
	return 0
}
