package retry

import (
	"math"
	"time"
)

// maxShift bounds the exponent so the multiplication cannot overflow int64.
const maxShift = 62

// calculateBackoff returns InitialDelay * 2^attempt for a zero based attempt,
// capped at MaxDelay when one is configured and saturating instead of
// overflowing for large attempts.
func (p *Provider) calculateBackoff(attempt int) time.Duration {
	return Backoff(p.config.InitialDelay, p.config.MaxDelay, attempt)
}

// Backoff is the delay after a failed zero based attempt. maxDelay of zero
// means uncapped.
func Backoff(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := time.Duration(math.MaxInt64)
	if attempt < maxShift && initial <= time.Duration(math.MaxInt64>>attempt) {
		d = initial << attempt
	}

	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
