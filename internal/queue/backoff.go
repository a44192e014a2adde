package queue

import "time"

// Backoff computes the delay before the next retry attempt: the base delay
// doubled per completed attempt, bounded by cap. Attempt counts start at
// zero for the first failure.
func Backoff(attempts int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
