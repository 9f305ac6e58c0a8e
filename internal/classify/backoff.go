package classify

import (
	"math/rand"
	"time"
)

// BackoffTiers is the default retry delay schedule indexed by attempt:
// first retry after 5 minutes, second after 30, everything after that 2 hours.
var BackoffTiers = []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour}

// JitterMax bounds the random jitter added to every delay to spread out
// retries of events that failed together.
const JitterMax = time.Minute

// Delay returns the backoff before retrying after the given 1-based attempt
// count, using the supplied schedule, plus random jitter in [0, jitterMax).
func Delay(attempt int, schedule []time.Duration, jitterMax time.Duration, rng *rand.Rand) time.Duration {
	if len(schedule) == 0 {
		schedule = BackoffTiers
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	base := schedule[idx]

	if jitterMax <= 0 {
		return base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return base + time.Duration(rng.Int63n(int64(jitterMax)))
}

// RetryEligible reports whether a failed event may be retried: the attempt
// ceiling for its kind must not be reached, and the backoff for the current
// attempt count must have elapsed since the last attempt. A zero lastAttempt
// means the event has never been attempted and is immediately eligible.
func RetryEligible(kind Kind, attempts int, lastAttempt time.Time, now time.Time, schedule []time.Duration) bool {
	if attempts >= MaxAttempts(kind) {
		return false
	}
	if lastAttempt.IsZero() {
		return true
	}
	return now.Sub(lastAttempt) >= Delay(attempts, schedule, 0, nil)
}
