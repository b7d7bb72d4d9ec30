package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wasteloop/internal/config"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyAnalyzeUser  = "waste:analyze:user:%s"
	EndpointAnalyze = "analyze"
)

var ErrRateLimited = errors.New("rate_limited")

// LimitError carries the retry hint for a rejected call.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}

// AnalyzeLimiter throttles the analyze endpoint per user. A nil bucket
// disables limiting.
type AnalyzeLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

type AnalyzeParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Redis   *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func NewAnalyzeLimiter(p AnalyzeParams) *AnalyzeLimiter {
	limiter := &AnalyzeLimiter{
		rate:    p.Config.RateLimit.AnalyzeRate,
		burst:   p.Config.RateLimit.AnalyzeBurst,
		log:     p.Log.Named("ratelimit.analyze"),
		metrics: p.Metrics,
	}
	if p.Redis != nil && p.Config.RateLimit.AnalyzeEnabled && limiter.rate > 0 && limiter.burst > 0 {
		limiter.bucket = NewTokenBucket(p.Redis)
	}
	return limiter
}

func (l *AnalyzeLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when Redis errors so the limiter never blocks analysis.
func (l *AnalyzeLimiter) Allow(ctx context.Context, userID snowflake.ID) error {
	if !l.Enabled() {
		return nil
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyAnalyzeUser, userID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("analyze rate limit check failed", zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}

	l.metrics.RecordRateLimitDenied(ctx, EndpointAnalyze)
	return &LimitError{RetryAfter: res.RetryAfter}
}
