package application

import (
	"context"
	"log/slog"

	"porter/contexts/messaging-core/rate-limiter/ports"
)

// DistributedChecker is the shape of a limiter backed by a shared store. It
// may fail; the fallback wrapper decides what failure means.
type DistributedChecker interface {
	Check(ctx context.Context, subject string, kind string) (ports.Decision, error)
}

// FallbackLimiter prefers the distributed checker and degrades to the local
// limiter when the shared store is unreachable. Rate limiting is protective,
// not correctness-critical, so an outage must never block traffic outright.
type FallbackLimiter struct {
	Primary DistributedChecker
	Local   *LocalLimiter
	Logger  *slog.Logger
}

func (f FallbackLimiter) CheckAndRecord(ctx context.Context, subject string, kind string) ports.Decision {
	if f.Primary != nil {
		decision, err := f.Primary.Check(ctx, subject, kind)
		if err == nil {
			return decision
		}
		f.logger().Warn("distributed rate limiter unavailable, using local windows",
			"event", "rate_limit_fallback",
			"module", "messaging-core/rate-limiter",
			"layer", "application",
			"subject", subject,
			"error", err,
		)
	}
	if f.Local != nil {
		return f.Local.CheckAndRecord(ctx, subject, kind)
	}
	return ports.Decision{Allowed: true}
}

func (f FallbackLimiter) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
