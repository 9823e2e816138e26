package faults

import (
	"context"
	"time"
)

// RetryTransient runs fn up to attempts times, sleeping base, 2*base,
// 4*base... between tries, but only while fn keeps failing with a transient
// class. This is the store-client retry layer; it is separate from the
// application-level retries (dead-letter scheduling, concurrency controller).
func RetryTransient(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := base
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		err = fn()
		if err == nil {
			return nil
		}
		if ClassOf(err) != ClassTransient {
			return err
		}
	}
	return err
}
