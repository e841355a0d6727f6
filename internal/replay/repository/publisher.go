package repository

import (
	"context"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// EventPublisher progress and result sink
type EventPublisher interface {
	PublishProgress(ctx context.Context, ev domain.ProgressEvent) error
	PublishResult(ctx context.Context, ev domain.ResultEvent) error
}

// MultiPublisher the primary decides the outcome; mirror failures are only logged
type MultiPublisher struct {
	primary EventPublisher
	mirrors []EventPublisher
	log     *logger.LogInfo
}

// NewMultiPublisher create MultiPublisher. nil mirrors are skipped
func NewMultiPublisher(primary EventPublisher, log *logger.LogInfo, mirrors ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{primary: primary, log: log}
	for _, p := range mirrors {
		if p != nil {
			m.mirrors = append(m.mirrors, p)
		}
	}
	return m
}

// PublishProgress 先寫主要 stream，再寫鏡像
func (m *MultiPublisher) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	if err := m.primary.PublishProgress(ctx, ev); err != nil {
		return err
	}
	for _, p := range m.mirrors {
		if err := p.PublishProgress(ctx, ev); err != nil {
			m.log.Warn("mirror progress publish failed", zap.String("jobId", ev.JobID), zap.Error(err))
		}
	}
	return nil
}

// PublishResult 主要 stream 失敗時回傳錯誤，訊息不會被 ack
func (m *MultiPublisher) PublishResult(ctx context.Context, ev domain.ResultEvent) error {
	if err := m.primary.PublishResult(ctx, ev); err != nil {
		return err
	}
	for _, p := range m.mirrors {
		if err := p.PublishResult(ctx, ev); err != nil {
			m.log.Warn("mirror result publish failed",
				zap.String("jobId", ev.JobID),
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
		}
	}
	return nil
}
