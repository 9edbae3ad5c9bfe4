package tasks

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 30 * time.Second
	retryMaxInterval     = time.Hour
	retryMultiplier      = 2.0
)

// RetryDelay returns the wait before the next run of a task that has
// already failed attempt times. Deterministic so tests can assert on the
// schedule.
func RetryDelay(attempt int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.Multiplier = retryMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}
