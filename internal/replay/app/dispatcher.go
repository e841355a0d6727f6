package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replay_worker/internal/replay/domain"
	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/logger"
	"replay_worker/pkg/metrics"

	"go.uber.org/zap"
)

// Dispatcher turns one request into exactly one result event. Handler failures
// of any kind, panics included, become FAILED results.
type Dispatcher struct {
	handlers  map[domain.JobType]JobHandler
	publisher repository.EventPublisher
	metrics   *metrics.WorkerMetrics
	log       *logger.LogInfo
}

// NewDispatcher create Dispatcher
func NewDispatcher(publisher repository.EventPublisher, m *metrics.WorkerMetrics, log *logger.LogInfo) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[domain.JobType]JobHandler),
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

// Register handler for t
func (d *Dispatcher) Register(t domain.JobType, h JobHandler) {
	d.handlers[t] = h
}

// Dispatch returns an error only when the result could not be published, in
// which case the message must stay pending.
func (d *Dispatcher) Dispatch(ctx context.Context, values map[string]interface{}) error {
	req := domain.JobRequestFromValues(values)
	if !req.Addressable() {
		d.log.Warn("dropping request without jobId or jobType",
			zap.String("jobId", req.JobID),
			zap.String("jobType", req.JobType),
		)
		return nil
	}
	log := d.log.With(zap.String("jobId", req.JobID), zap.String("jobType", req.JobType))

	progress := d.progressFunc(ctx, req.JobID, log)
	progress(domain.PhaseQueue, 10, "worker picked up the job")

	start := time.Now()
	result := d.run(ctx, req, progress, log)
	d.metrics.ObserveJob(req.JobType, string(result.Status), time.Since(start))

	if result.Status == domain.StatusSucceeded {
		log.Info("job succeeded", zap.String("resultUri", result.ResultURI), zap.Duration("elapsed", time.Since(start)))
	} else {
		log.Warn("job failed", zap.String("errorCode", result.ErrorCode), zap.String("errorMessage", result.ErrorMessage))
	}

	if err := d.publisher.PublishResult(ctx, result); err != nil {
		return fmt.Errorf("publish result for job %s: %w", req.JobID, err)
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, req domain.JobRequest, progress ProgressFunc, log *logger.LogInfo) (result domain.ResultEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = domain.Failed(req.JobID, domain.CodeWorkerError, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	job, err := domain.ParseJob(req)
	if err != nil {
		var unsupported *domain.ErrUnsupportedType
		if errors.As(err, &unsupported) {
			return domain.Failed(req.JobID, domain.CodeUnsupportedType, err.Error())
		}
		return domain.Failed(req.JobID, domain.ErrorCode(err), err.Error())
	}

	handler, ok := d.handlers[job.Type()]
	if !ok {
		return domain.Failed(req.JobID, domain.CodeUnsupportedType, fmt.Sprintf("no handler for job type %s", job.Type()))
	}

	artifact, err := handler.Export(ctx, job, progress)
	if err != nil {
		return domain.Failed(req.JobID, domain.ErrorCode(err), err.Error())
	}
	if artifact.Reused {
		log.Info("reused existing artifact", zap.String("path", artifact.URI))
	}
	return domain.Succeeded(req.JobID, artifact.URI, artifact.Checksum)
}

// progressFunc 進度僅供參考，發送失敗只記錄
func (d *Dispatcher) progressFunc(ctx context.Context, jobID string, log *logger.LogInfo) ProgressFunc {
	return func(phase domain.Phase, percent int, message string) {
		ev := domain.ProgressEvent{JobID: jobID, Progress: percent, Phase: phase, Message: message}
		if err := d.publisher.PublishProgress(ctx, ev); err != nil {
			log.Warn("publish progress failed", zap.String("phase", string(phase)), zap.Int("progress", percent), zap.Error(err))
		}
	}
}
