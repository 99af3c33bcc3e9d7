package delivery

import "time"

// DefaultRetryDelays is the backoff schedule between attempts: 1 min,
// 5 min, 15 min. Attempts past the schedule reuse the last delay.
var DefaultRetryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// NextRetryDelay returns the wait before the attempt after attemptCount
// (1-indexed: attemptCount attempts have already happened).
func NextRetryDelay(attemptCount int, delays []time.Duration) time.Duration {
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
