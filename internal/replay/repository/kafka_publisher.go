package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"replay_worker/internal/replay/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter the part of *kafka.Writer the mirror needs
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEventPublisher mirrors terminal results to a topic keyed by jobId.
// Progress is not mirrored.
type KafkaEventPublisher struct {
	writer KafkaWriter
}

// NewKafkaEventPublisher create KafkaEventPublisher
func NewKafkaEventPublisher(writer KafkaWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// PublishProgress no-op
func (p *KafkaEventPublisher) PublishProgress(context.Context, domain.ProgressEvent) error {
	return nil
}

// PublishResult 以 jobId 作為 key，同一個 job 的結果會落在同一個 partition
func (p *KafkaEventPublisher) PublishResult(ctx context.Context, ev domain.ResultEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(ev.Status)},
		},
	}); err != nil {
		return fmt.Errorf("kafka write result: %w", err)
	}
	return nil
}
