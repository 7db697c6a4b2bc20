package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/config"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

const redisDialTimeout = 3 * time.Second

// Redis carries the cross-process ticket locks and the notification channel.
// Both fall back to in-process behavior when the startup ping fails.
type Redis struct {
	Client *redis.Client
	// Reachable is the result of the startup ping.
	Reachable bool
}

// NewRedis connects and pings once; an unreachable server is logged, not fatal.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisDialTimeout,
	})

	fields := []zap.Field{zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB)}
	r := &Redis{Client: client}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; ticket locks and notifications stay in-process",
			append(fields, zap.Error(err))...)
	} else {
		r.Reachable = true
		logger.Info("redis connected for ticket locks and notifications", fields...)
	}
	return r
}

// Available returns the client only when the startup ping succeeded.
func (r *Redis) Available() *redis.Client {
	if r == nil || !r.Reachable {
		return nil
	}
	return r.Client
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping backs the redis entry of the health endpoint.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrRedisUnavailable
	}
	return r.Client.Ping(ctx).Err()
}
