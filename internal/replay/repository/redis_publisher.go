package repository

import (
	"context"
	"fmt"

	"replay_worker/internal/replay/domain"

	"github.com/go-redis/redis/v8"
)

// RedisEventPublisher writes events to the progress and result streams
type RedisEventPublisher struct {
	client         *redis.Client
	progressStream string
	resultStream   string
}

// NewRedisEventPublisher create RedisEventPublisher
func NewRedisEventPublisher(client *redis.Client, progressStream, resultStream string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, progressStream: progressStream, resultStream: resultStream}
}

// PublishProgress XADD to the progress stream
func (p *RedisEventPublisher) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.progressStream, Values: ev.Values()}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.progressStream, err)
	}
	return nil
}

// PublishResult XADD to the result stream
func (p *RedisEventPublisher) PublishResult(ctx context.Context, ev domain.ResultEvent) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.resultStream, Values: ev.Values()}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.resultStream, err)
	}
	return nil
}
