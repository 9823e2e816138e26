package ratelimiter

import (
	"log/slog"

	redisadapter "porter/contexts/messaging-core/rate-limiter/adapters/redis"
	"porter/contexts/messaging-core/rate-limiter/application"
	"porter/contexts/messaging-core/rate-limiter/ports"

	"github.com/redis/go-redis/v9"
)

type Module struct {
	Limiter ports.Limiter
	Local   *application.LocalLimiter
}

type Dependencies struct {
	Redis  *redis.Client
	Limits ports.Limits
	Clock  ports.Clock
	Logger *slog.Logger
}

// NewModule wires the distributed limiter over Redis with the in-process
// limiter as its degradation path. Without a Redis client the local limiter
// serves alone.
func NewModule(deps Dependencies) Module {
	local := application.NewLocalLimiter(deps.Limits, deps.Clock, deps.Logger)
	module := Module{Local: local, Limiter: local}
	if deps.Redis != nil {
		module.Limiter = application.FallbackLimiter{
			Primary: redisadapter.NewLimiter(deps.Redis, deps.Limits, deps.Clock),
			Local:   local,
			Logger:  deps.Logger,
		}
	}
	return module
}

func NewInMemoryModule(limits ports.Limits, logger *slog.Logger) Module {
	return NewModule(Dependencies{Limits: limits, Logger: logger})
}
