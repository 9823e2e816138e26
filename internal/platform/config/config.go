package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is centralized process configuration. Keep infra values here and
// pass typed sub-configs into builders.
type Config struct {
	ServiceName string
	HTTPPort    string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL      string
	InboundQueue string

	// Per-unit wall clock budget for the dispatch pipeline.
	UnitBudget time.Duration

	DedupCacheTTL time.Duration

	RateLimitPerMinute   int
	RateLimitPerHour     int
	RateLimitBurstWindow time.Duration
	RateLimitBurstMax    int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerCooldown         time.Duration

	DLQMaxRetries     int
	DLQFirstBackoff   time.Duration
	DLQSweepInterval  time.Duration
	DLQBatchSize      int
	DLQRetention      time.Duration
	DLQAlertThreshold int
}

// Load reads configuration from the environment (PORTER_ prefix) and, when
// PORTER_CONFIG_FILE points at one, a config file. Environment wins.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service_name", "porter")
	v.SetDefault("http_port", "8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("amqp_url", "")
	v.SetDefault("inbound_queue", "porter.inbound")
	v.SetDefault("unit_budget", "30s")
	v.SetDefault("dedup_cache_ttl", "30m")
	v.SetDefault("rate_limit_per_minute", 20)
	v.SetDefault("rate_limit_per_hour", 200)
	v.SetDefault("rate_limit_burst_window", "10s")
	v.SetDefault("rate_limit_burst_max", 8)
	v.SetDefault("breaker_failure_threshold", 5)
	v.SetDefault("breaker_success_threshold", 2)
	v.SetDefault("breaker_cooldown", "30s")
	v.SetDefault("dlq_max_retries", 3)
	v.SetDefault("dlq_first_backoff", "1m")
	v.SetDefault("dlq_sweep_interval", "30s")
	v.SetDefault("dlq_batch_size", 50)
	v.SetDefault("dlq_retention", "720h")
	v.SetDefault("dlq_alert_threshold", 10)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := Config{
		ServiceName:             v.GetString("service_name"),
		HTTPPort:                v.GetString("http_port"),
		PostgresDSN:             v.GetString("postgres_dsn"),
		RedisAddr:               v.GetString("redis_addr"),
		RedisPassword:           v.GetString("redis_password"),
		RedisDB:                 v.GetInt("redis_db"),
		AMQPURL:                 v.GetString("amqp_url"),
		InboundQueue:            v.GetString("inbound_queue"),
		UnitBudget:              v.GetDuration("unit_budget"),
		DedupCacheTTL:           v.GetDuration("dedup_cache_ttl"),
		RateLimitPerMinute:      v.GetInt("rate_limit_per_minute"),
		RateLimitPerHour:        v.GetInt("rate_limit_per_hour"),
		RateLimitBurstWindow:    v.GetDuration("rate_limit_burst_window"),
		RateLimitBurstMax:       v.GetInt("rate_limit_burst_max"),
		BreakerFailureThreshold: v.GetInt("breaker_failure_threshold"),
		BreakerSuccessThreshold: v.GetInt("breaker_success_threshold"),
		BreakerCooldown:         v.GetDuration("breaker_cooldown"),
		DLQMaxRetries:           v.GetInt("dlq_max_retries"),
		DLQFirstBackoff:         v.GetDuration("dlq_first_backoff"),
		DLQSweepInterval:        v.GetDuration("dlq_sweep_interval"),
		DLQBatchSize:            v.GetInt("dlq_batch_size"),
		DLQRetention:            v.GetDuration("dlq_retention"),
		DLQAlertThreshold:       v.GetInt("dlq_alert_threshold"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if strings.TrimSpace(c.PostgresDSN) == "" {
		return errors.New("PORTER_POSTGRES_DSN is required")
	}
	if c.UnitBudget <= 0 {
		return errors.New("unit_budget must be positive")
	}
	if c.DLQMaxRetries < 1 {
		return errors.New("dlq_max_retries must be at least 1")
	}
	if c.DLQSweepInterval <= 0 {
		return errors.New("dlq_sweep_interval must be positive")
	}
	return nil
}
