package database

import (
	"context"
	"fmt"
	"time"

	"replay_worker/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedisClient 建立 redis 連線並 ping 確認，失敗時依 RetryCount 重試。
// SentinelAddrs 不為空時使用哨兵模式
func NewRedisClient(ctx context.Context, d RedisConnection, log *logger.LogInfo) (*redis.Client, error) {
	var err error
	for attempt := 1; attempt <= retryCount(d.RetryCount); attempt++ {
		rdb := newRedisClient(d)
		if err = rdb.Ping(ctx).Err(); err == nil {
			log.Info("redis connected", zap.String("addr", d.Addr), zap.Int("attempt", attempt))
			return rdb, nil
		}
		_ = rdb.Close()

		log.Warn("Failed to connect to redis, retrying...",
			zap.Int("attempt", attempt),
			zap.String("addr", d.Addr),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.RetryInterval * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to redis[%s] after %d attempts: %w", d.Addr, retryCount(d.RetryCount), err)
}

func newRedisClient(d RedisConnection) *redis.Client {
	if len(d.SentinelAddrs) > 0 {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    d.MasterName,
			SentinelAddrs: d.SentinelAddrs,
			Password:      d.Password,
			DB:            d.DB,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     d.Addr,
		Password: d.Password,
		DB:       d.DB,
	})
}
