package ratesource

import (
	"math/rand"
	"time"
)

// Retry delays between fetch attempts.
var retryDelays = []time.Duration{
	200 * time.Millisecond,
	1 * time.Second,
}

const (
	// DefaultMaxAttempts is the default number of fetch attempts.
	DefaultMaxAttempts = 3

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay calculates the delay before the next attempt with jitter.
// attemptCount is 0-indexed (after the first failed attempt, attemptCount = 0).
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]
	jitter := (rand.Float64()*2 - 1) * float64(base) * JitterFactor
	return time.Duration(float64(base) + jitter)
}
