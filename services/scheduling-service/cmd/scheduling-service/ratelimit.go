package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/config"
	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/redis/go-redis/v9"
)

// rateLimitMiddleware guards the public booking routes. With REDIS_ADDR set the window is
// shared across replicas, otherwise it is kept in process memory.
func rateLimitMiddleware(logger *slog.Logger) (httpx.Middleware, func(), func(context.Context) error) {
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60, 1, 100000)

	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
		return httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0, 0, 15),
	})
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:scheduling"))
	logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		func() { _ = rdb.Close() },
		httpx.RedisReadyCheck(rdb)
}
