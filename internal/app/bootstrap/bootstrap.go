package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	circuitbreaker "porter/contexts/messaging-core/circuit-breaker"
	breakerports "porter/contexts/messaging-core/circuit-breaker/ports"
	deadletter "porter/contexts/messaging-core/dead-letter"
	dlpostgres "porter/contexts/messaging-core/dead-letter/adapters/postgres"
	dlworkers "porter/contexts/messaging-core/dead-letter/application/workers"
	dedupgate "porter/contexts/messaging-core/dedup-gate"
	dedupmemory "porter/contexts/messaging-core/dedup-gate/adapters/memory"
	deduppostgres "porter/contexts/messaging-core/dedup-gate/adapters/postgres"
	dispatch "porter/contexts/messaging-core/dispatch"
	dispatchamqp "porter/contexts/messaging-core/dispatch/adapters/amqp"
	ratelimiter "porter/contexts/messaging-core/rate-limiter"
	limiterports "porter/contexts/messaging-core/rate-limiter/ports"
	sessionstate "porter/contexts/messaging-core/session-state"
	sessionpostgres "porter/contexts/messaging-core/session-state/adapters/postgres"
	ticketflow "porter/contexts/ticket-flow"
	ticketmemory "porter/contexts/ticket-flow/adapters/memory"
	ticketports "porter/contexts/ticket-flow/ports"
	"porter/internal/platform/config"
	"porter/internal/platform/db"
	"porter/internal/platform/httpserver"
	"porter/internal/platform/messaging"
	"porter/internal/platform/redisclient"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Package bootstrap is the composition root. Keep construction and wiring
// here so context code stays framework-agnostic.

const janitorIdleTTL = 2 * time.Hour

type BotApp struct {
	server   *httpserver.Server
	consumer *dispatchamqp.Consumer
	limiter  ratelimiter.Module
	postgres *db.Postgres
	redis    *redis.Client
	amqpConn *amqp091.Connection
	logger   *slog.Logger
}

type WorkerApp struct {
	scheduler    dlworkers.RetryScheduler
	retention    dlworkers.RetentionSweeper
	postgres     *db.Postgres
	pollInterval time.Duration
	logger       *slog.Logger
}

// core is the wiring shared by both processes: durable stores, breakers and
// the business handler behind the dispatch entry point.
type core struct {
	dedup    dedupgate.Module
	sessions sessionstate.Module
	breakers circuitbreaker.Module
	letters  deadletter.Module
	flow     ticketflow.Module
}

func buildCore(cfg config.Config, pg *db.Postgres, channel ticketports.ChannelClient, logger *slog.Logger) core {
	dedupModule := dedupgate.NewModule(dedupgate.Dependencies{
		Repository: deduppostgres.NewRepository(pg.DB, logger),
		Cache:      dedupmemory.NewCache(),
		Policies:   dedupgate.DefaultPolicies(),
		Clock:      deduppostgres.SystemClock{},
		CacheTTL:   cfg.DedupCacheTTL,
		Logger:     logger,
	})

	sessionModule := sessionstate.NewModule(sessionstate.Dependencies{
		Repository: sessionpostgres.NewRepository(pg.DB, logger),
		Clock:      sessionpostgres.SystemClock{},
		Logger:     logger,
	})

	breakerModule := circuitbreaker.NewModule(circuitbreaker.Dependencies{
		Defaults: breakerports.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Cooldown:         cfg.BreakerCooldown,
		},
		Logger: logger,
	})

	letterModule := deadletter.NewModule(deadletter.Dependencies{
		Repository:   dlpostgres.NewRepository(pg.DB, logger),
		IDs:          dlpostgres.UUIDGenerator{},
		Clock:        dlpostgres.SystemClock{},
		MaxRetries:   cfg.DLQMaxRetries,
		FirstBackoff: cfg.DLQFirstBackoff,
		Logger:       logger,
	})

	// The equipment registry, ticket desk and rating book run on memory
	// adapters while the outbound gateway integrations are finalized.
	flowModule := ticketflow.NewModule(ticketflow.Dependencies{
		Sessions:  sessionModule.Controller,
		Breakers:  breakerModule.Registry,
		Equipment: ticketmemory.NewEquipmentDirectory(),
		Tickets:   ticketmemory.NewTicketDesk(),
		Ratings:   ticketmemory.NewRatingBook(),
		Channel:   channel,
		Logger:    logger,
	})

	return core{
		dedup:    dedupModule,
		sessions: sessionModule,
		breakers: breakerModule,
		letters:  letterModule,
		flow:     flowModule,
	}
}

func BuildBot() (*BotApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "bot")

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisclient.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		pg.Close()
		return nil, err
	}

	var amqpConn *amqp091.Connection
	var channel ticketports.ChannelClient = messaging.LogChannel{Logger: logger}
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		amqpConn, err = amqp091.Dial(cfg.AMQPURL)
		if err != nil {
			pg.Close()
			return nil, err
		}
		outbound, err := messaging.NewAMQPChannel(amqpConn, "", logger)
		if err != nil {
			amqpConn.Close()
			pg.Close()
			return nil, err
		}
		channel = outbound
	}

	c := buildCore(cfg, pg, channel, logger)

	limiterModule := ratelimiter.NewModule(ratelimiter.Dependencies{
		Redis: redisClient,
		Limits: limiterports.Limits{
			PerMinute:   cfg.RateLimitPerMinute,
			PerHour:     cfg.RateLimitPerHour,
			BurstWindow: cfg.RateLimitBurstWindow,
			BurstMax:    cfg.RateLimitBurstMax,
		},
		Logger: logger,
	})

	dispatchModule := dispatch.NewModule(dispatch.Dependencies{
		Limiter:     limiterModule.Limiter,
		Gate:        c.dedup.Service,
		Handler:     c.flow.Flow,
		DeadLetters: c.letters.Service,
		Channel:     channel,
		UnitBudget:  cfg.UnitBudget,
		Logger:      logger,
	})

	var consumer *dispatchamqp.Consumer
	if amqpConn != nil {
		consumer, err = dispatchamqp.NewConsumer(dispatchamqp.Config{
			URL:   cfg.AMQPURL,
			Queue: cfg.InboundQueue,
		}, dispatchModule.Pipeline, logger)
		if err != nil {
			amqpConn.Close()
			pg.Close()
			return nil, err
		}
	}

	server := httpserver.New(httpserver.Diagnostics{
		DedupCacheSize: c.dedup.Service.CacheSize,
		Breakers:       c.breakers.Registry.Snapshots,
		DeadLetters:    c.letters.Service.Stats,
		RateLimiter:    limiterModule.Local.Stats,
	}, logger, normalizeAddr(cfg.HTTPPort))

	return &BotApp{
		server:   server,
		consumer: consumer,
		limiter:  limiterModule,
		postgres: pg,
		redis:    redisClient,
		amqpConn: amqpConn,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	// Replays go straight to the business handler: the live unit already
	// passed the rate limiter and the dedup gate on first delivery.
	c := buildCore(cfg, pg, messaging.LogChannel{Logger: logger}, logger)

	return &WorkerApp{
		scheduler: dlworkers.RetryScheduler{
			Queue:          c.letters.Service,
			Handler:        c.flow.Flow,
			Clock:          dlpostgres.SystemClock{},
			BatchSize:      cfg.DLQBatchSize,
			AttemptTimeout: cfg.UnitBudget,
			Freshness:      deadletter.DefaultFreshness(),
			AlertThreshold: cfg.DLQAlertThreshold,
			Logger:         logger,
		},
		retention: dlworkers.RetentionSweeper{
			Repo:      dlpostgres.NewRepository(pg.DB, logger),
			Clock:     dlpostgres.SystemClock{},
			Retention: cfg.DLQRetention,
			Logger:    logger,
		},
		postgres:     pg,
		pollInterval: cfg.DLQSweepInterval,
		logger:       logger,
	}, nil
}

func (a *BotApp) Run(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
	}

	// Janitor for the process-local limiter windows.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.limiter.Local.Prune(janitorIdleTTL)
			}
		}
	}()

	a.logger.Info("bot app started",
		"event", "bootstrap_bot_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"consuming", a.consumer != nil,
	)
	return a.server.Start()
}

func (a *BotApp) Close() error {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.amqpConn != nil {
		_ = a.amqpConn.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	retentionEvery := 240 * time.Minute / w.pollInterval
	if retentionEvery < 1 {
		retentionEvery = 1
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	var ticks int64
	for {
		if _, err := w.scheduler.RunOnce(ctx); err != nil {
			return err
		}
		if ticks%int64(retentionEvery) == 0 {
			if err := w.retention.RunOnce(ctx); err != nil {
				return err
			}
		}
		ticks++

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
