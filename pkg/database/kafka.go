package database

import (
	"context"
	"fmt"
	"time"

	"replay_worker/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 確認 broker 可連線後建立 Kafka Writer。
// 不送測試訊息，topic 只會收到真正的事件
func NewKafkaWriterWithRetry(ctx context.Context, k KafkaConnection, log *logger.LogInfo) (*kafka.Writer, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	var err error
	for attempt := 1; attempt <= retryCount(k.RetryCount); attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		if err == nil {
			_ = conn.Close()
			log.Info("kafka writer ready", zap.Strings("brokers", k.Brokers), zap.String("topic", k.Topic))
			return &kafka.Writer{
				Addr:         kafka.TCP(k.Brokers...),
				Topic:        k.Topic,
				Balancer:     &kafka.Hash{},
				RequiredAcks: kafka.RequireAll,
			}, nil
		}

		log.Warn("kafka dial failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Strings("brokers", k.Brokers),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("kafka writer for %v after %d attempts: %w", k.Brokers, retryCount(k.RetryCount), err)
}
