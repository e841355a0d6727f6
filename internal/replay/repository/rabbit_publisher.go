package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/database"

	"github.com/streadway/amqp"
)

// RabbitEventPublisher mirrors terminal results to a durable queue
type RabbitEventPublisher struct {
	repo  database.RabbitRepo
	queue string
}

// NewRabbitEventPublisher declares the queue before returning
func NewRabbitEventPublisher(repo database.RabbitRepo, queue string) (*RabbitEventPublisher, error) {
	if err := repo.QueueDeclare(queue); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitEventPublisher{repo: repo, queue: queue}, nil
}

// PublishProgress no-op
func (p *RabbitEventPublisher) PublishProgress(context.Context, domain.ProgressEvent) error {
	return nil
}

// PublishResult persistent message on the default exchange
func (p *RabbitEventPublisher) PublishResult(_ context.Context, ev domain.ResultEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	err = p.repo.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.JobID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish result: %w", err)
	}
	return nil
}
