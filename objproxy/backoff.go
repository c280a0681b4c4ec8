package objproxy

import (
	"time"

	"github.com/jpillora/backoff"
)

// defaultCancelRetryMin and defaultCancelRetryMax bound the
// CancellationRequest resend loop's exponential backoff between 200 ms and
// 1,000 ms, paced by the same github.com/jpillora/backoff library used
// elsewhere for connection-retry loops.
const (
	defaultCancelRetryMin = 200 * time.Millisecond
	defaultCancelRetryMax = 1 * time.Second
)

func newCancelBackoff(min, max time.Duration) *backoff.Backoff {
	if min <= 0 {
		min = defaultCancelRetryMin
	}
	if max <= 0 {
		max = defaultCancelRetryMax
	}
	return &backoff.Backoff{Min: min, Max: max, Factor: 2, Jitter: true}
}
