package userlock

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Redis   *redis.Client          `optional:"true"`
	Metrics *metrics.WorkerMetrics `optional:"true"`
}

// New picks the Redis lock when Redis is configured and falls back to the
// in-process lock otherwise.
func New(p Params) Locker {
	log := p.Log.Named("userlock")
	if p.Redis == nil {
		log.Info("user lock running in-process")
		return NewLocalLocker(p.Metrics)
	}
	return NewRedisLocker(p.Redis, lockTTL(p.Config), log, p.Metrics)
}

const (
	pipelineTimeoutFallback = 45 * time.Second
	lockTTLMargin           = 15 * time.Second
)

// lockTTL keeps the Redis lease alive for the longest pipeline run that can
// hold it.
func lockTTL(cfg config.Config) time.Duration {
	timeout := cfg.Ingestion.TaskTimeout
	if timeout <= 0 {
		timeout = pipelineTimeoutFallback
	}
	if floor := timeout + lockTTLMargin; cfg.Redis.LockTTL < floor {
		return floor
	}
	return cfg.Redis.LockTTL
}

var Module = fx.Module("userlock",
	fx.Provide(New),
)
