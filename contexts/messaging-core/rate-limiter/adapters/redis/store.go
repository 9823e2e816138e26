package redisadapter

import (
	"context"
	"fmt"
	"time"

	"porter/contexts/messaging-core/rate-limiter/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "porter:rl"

// Limiter performs sliding-window accounting against per-window expiring
// counters in Redis, giving every process instance the same view of a
// subject. Callers must treat an error as "no distributed answer" and fall
// back locally; this adapter never invents a decision on a broken pipeline.
type Limiter struct {
	client *redis.Client
	limits ports.Limits
	clock  ports.Clock
}

func NewLimiter(client *redis.Client, limits ports.Limits, clock ports.Clock) *Limiter {
	return &Limiter{
		client: client,
		limits: limits.Normalized(),
		clock:  clock,
	}
}

// Check increments all three window counters in one pipeline and evaluates
// the caps on the returned values. The count includes the current request,
// so a denial leaves a phantom increment behind; the counter's expiry keeps
// that conservative bias short-lived.
func (l *Limiter) Check(ctx context.Context, subject string, _ string) (ports.Decision, error) {
	now := l.now()

	minuteKey := l.key(subject, "minute", now.Truncate(time.Minute))
	hourKey := l.key(subject, "hour", now.Truncate(time.Hour))
	burstKey := l.key(subject, "burst", now.Truncate(l.limits.BurstWindow))

	pipe := l.client.Pipeline()
	minuteCount := pipe.Incr(ctx, minuteKey)
	pipe.Expire(ctx, minuteKey, 2*time.Minute)
	hourCount := pipe.Incr(ctx, hourKey)
	pipe.Expire(ctx, hourKey, 2*time.Hour)
	burstCount := pipe.Incr(ctx, burstKey)
	pipe.Expire(ctx, burstKey, 2*l.limits.BurstWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	if burstCount.Val() > int64(l.limits.BurstMax) {
		return ports.Decision{
			Reason:   ports.ReasonBurstAbuse,
			WaitTime: untilBucketRollover(now, l.limits.BurstWindow),
		}, nil
	}
	if minuteCount.Val() > int64(l.limits.PerMinute) {
		return ports.Decision{
			Reason:   ports.ReasonMinuteCap,
			WaitTime: untilBucketRollover(now, time.Minute),
		}, nil
	}
	if hourCount.Val() > int64(l.limits.PerHour) {
		return ports.Decision{
			Reason:   ports.ReasonHourCap,
			WaitTime: untilBucketRollover(now, time.Hour),
		}, nil
	}
	return ports.Decision{Allowed: true}, nil
}

func (l *Limiter) key(subject string, window string, bucket time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, subject, window, bucket.Unix())
}

func (l *Limiter) now() time.Time {
	if l.clock != nil {
		return l.clock.Now().UTC()
	}
	return time.Now().UTC()
}

func untilBucketRollover(now time.Time, window time.Duration) time.Duration {
	wait := now.Truncate(window).Add(window).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
