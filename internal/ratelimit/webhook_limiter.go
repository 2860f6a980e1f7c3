// Package ratelimit holds the Redis-backed admission controls: a token
// bucket for webhook deliveries and a distributed lock that keeps the
// reconcile sweep single-flight across gateway instances.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/commercekit/paystack-gateway/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyWebhookSource = "webhook:source:%s"
	keySweepLock     = "reconcile:sweep"
)

// WebhookLimiter caps per-source webhook delivery rates and hands out the
// reconcile sweep lock. A nil limiter admits everything, so callers never
// need to branch on whether Redis is configured.
type WebhookLimiter struct {
	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewWebhookLimiter(cfg config.Config) (*WebhookLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit redis addr is required")
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		return nil, fmt.Errorf("webhook rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &WebhookLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.WebhookRate,
		burst:   limitCfg.WebhookBurst,
		lockTTL: time.Duration(limitCfg.SweepLockTTLSeconds) * time.Second,
	}, nil
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowSource admits or rejects one webhook delivery from the given source
// address.
func (l *WebhookLimiter) AllowSource(ctx context.Context, source string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, strings.TrimSpace(source)), l.rate, l.burst)
}

// TryLockSweep claims the reconcile sweep for this instance. The second
// return is false when another instance holds it.
func (l *WebhookLimiter) TryLockSweep(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keySweepLock, l.lockTTL)
}

func (l *WebhookLimiter) ReleaseSweep(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keySweepLock, token)
}
