package pipeline

import (
	"errors"
	"time"

	"semdex/internal/embed"
)

// RetryPolicy decides, as a pure function of the attempt number and the
// error, whether a failed embedding call should be retried and after what
// delay. Keeping it side-effect free makes the backoff schedule testable
// without clocks.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Next returns the backoff delay before the following attempt, or ok=false
// when the caller should give up. attempt is 1-based: the attempt that just
// failed.
func (p RetryPolicy) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	if !retryable(err) {
		return 0, false
	}
	delay := p.BaseDelay << (attempt - 1)
	return delay, true
}

// retryable: transient embedding failures are worth another attempt;
// configuration and dimension errors never are, and a cancelled context
// means the caller already gave up.
func retryable(err error) bool {
	return errors.Is(err, embed.ErrEmbedding) || errors.Is(err, embed.ErrEmbedTimeout)
}
