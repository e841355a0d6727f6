package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"replay_worker/internal/replay/domain"

	"github.com/go-redis/redis/v8"
)

// StreamRepo consumer-group access to the request stream
type StreamRepo interface {
	EnsureGroup(ctx context.Context) error
	SupportsAutoClaim(ctx context.Context) (bool, error)
	ReadNew(ctx context.Context, count int64, block time.Duration) ([]domain.StreamMessage, error)
	ReadOwnPending(ctx context.Context, cursor string, count int64) ([]domain.StreamMessage, error)
	AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]domain.StreamMessage, string, error)
	Ack(ctx context.Context, ids ...string) error
}

type streamRepo struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewStreamRepo create StreamRepo bound to one stream/group/consumer
func NewStreamRepo(client *redis.Client, stream, group, consumer string) StreamRepo {
	return &streamRepo{client: client, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup 建立 consumer group，stream 不存在時一併建立。BUSYGROUP 代表已存在
func (r *streamRepo) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", r.group, r.stream, err)
	}
	return nil
}

// SupportsAutoClaim probes COMMAND INFO; unknown commands come back as a nil entry
func (r *streamRepo) SupportsAutoClaim(ctx context.Context) (bool, error) {
	reply, err := r.client.Do(ctx, "COMMAND", "INFO", "xautoclaim").Result()
	if err != nil {
		return false, fmt.Errorf("probe xautoclaim: %w", err)
	}
	infos, ok := reply.([]interface{})
	if !ok || len(infos) == 0 {
		return false, nil
	}
	return infos[0] != nil, nil
}

// ReadNew 讀取尚未派發的新訊息，逾時回傳空 slice
func (r *streamRepo) ReadNew(ctx context.Context, count int64, block time.Duration) ([]domain.StreamMessage, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(streams), nil
}

// ReadOwnPending 讀取已派發給自己但尚未 ack 的訊息，cursor 從 "0" 開始
func (r *streamRepo) ReadOwnPending(ctx context.Context, cursor string, count int64) ([]domain.StreamMessage, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, cursor},
		Count:    count,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(streams), nil
}

// AutoClaim transfers entries idle for at least minIdle to this consumer.
// Issued raw so both the two-element and the three-element reply shapes parse.
func (r *streamRepo) AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]domain.StreamMessage, string, error) {
	reply, err := r.client.Do(ctx, "XAUTOCLAIM", r.stream, r.group, r.consumer,
		minIdle.Milliseconds(), start, "COUNT", count).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim %s: %w", r.stream, err)
	}
	return parseAutoClaim(reply)
}

// Ack 確認訊息處理完成
func (r *streamRepo) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.client.XAck(ctx, r.stream, r.group, ids...).Err()
}

func flatten(streams []redis.XStream) []domain.StreamMessage {
	var out []domain.StreamMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, domain.StreamMessage{ID: m.ID, Values: m.Values})
		}
	}
	return out
}

// parseAutoClaim reply: [next-cursor, [[id, [k, v, ...]], ...], (deleted ids)]
func parseAutoClaim(reply interface{}) ([]domain.StreamMessage, string, error) {
	parts, ok := reply.([]interface{})
	if !ok || len(parts) < 2 {
		return nil, "", fmt.Errorf("unexpected xautoclaim reply %T", reply)
	}
	next, _ := parts[0].(string)
	entries, _ := parts[1].([]interface{})

	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.([]interface{})
		if !ok || len(entry) < 1 {
			continue
		}
		id, _ := entry[0].(string)
		if id == "" {
			continue
		}
		values := map[string]interface{}{}
		// 已被刪除的 entry 欄位為 nil
		if len(entry) > 1 {
			if fields, ok := entry[1].([]interface{}); ok {
				for i := 0; i+1 < len(fields); i += 2 {
					if k, ok := fields[i].(string); ok {
						values[k] = fields[i+1]
					}
				}
			}
		}
		out = append(out, domain.StreamMessage{ID: id, Values: values})
	}
	return out, next, nil
}
