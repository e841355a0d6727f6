package app

import (
	"context"
	"fmt"
	"iter"

	"replay_worker/internal/replay/domain"
	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// Artifact what a handler produced for one job
type Artifact struct {
	URI      string
	Checksum string
	Reused   bool
}

// JobHandler exports one job type. Errors carry their errorCode.
type JobHandler interface {
	Export(ctx context.Context, job domain.Job, progress ProgressFunc) (Artifact, error)
}

// Encoder turns a frame sequence into a video file
type Encoder interface {
	Encode(ctx context.Context, outputPath string, frames iter.Seq[[]byte], expectedMs int64, progress ProgressFunc) error
}

// VideoExporter REPLAY_EXPORT_MP4
type VideoExporter struct {
	committer  *Committer
	renderer   *Renderer
	encoder    Encoder
	intervalMs int64
	store      repository.ArtifactStore
	log        *logger.LogInfo
}

// NewVideoExporter store may be nil
func NewVideoExporter(committer *Committer, renderer *Renderer, encoder Encoder, intervalMs int64, store repository.ArtifactStore, log *logger.LogInfo) *VideoExporter {
	return &VideoExporter{
		committer:  committer,
		renderer:   renderer,
		encoder:    encoder,
		intervalMs: intervalMs,
		store:      store,
		log:        log,
	}
}

// Export validate path -> parse replay -> commit(encode)
func (h *VideoExporter) Export(ctx context.Context, job domain.Job, progress ProgressFunc) (Artifact, error) {
	j, ok := job.(domain.VideoExportJob)
	if !ok {
		return Artifact{}, fmt.Errorf("video exporter got %s job", job.Type())
	}
	log := h.log.With(zap.String("jobId", j.JobID), zap.String("replayId", j.ReplayID))

	path, err := h.committer.Resolve(j.OutputPath)
	if err != nil {
		return Artifact{}, err
	}
	timeline, err := ParseReplay(j.InputPath, log)
	if err != nil {
		return Artifact{}, err
	}

	res, err := h.committer.Commit(path, ArtifactMP4, func(tmp string) error {
		expectedMs := domain.ExpectedDurationMs(timeline, j.DurationMs, h.intervalMs)
		log.Info("encoding replay",
			zap.Int("events", len(timeline)),
			zap.Int64("expectedMs", expectedMs),
			zap.Int("frames", domain.FrameCount(expectedMs, h.intervalMs)),
		)
		return h.encoder.Encode(ctx, tmp, h.renderer.Frames(timeline, expectedMs, h.intervalMs), expectedMs, progress)
	})
	if err != nil {
		return Artifact{}, err
	}
	if !res.Reused {
		mirrorArtifact(ctx, h.store, j.JobID, res.Path, log)
	}
	return Artifact{URI: res.Path, Checksum: res.Checksum, Reused: res.Reused}, nil
}

// mirrorArtifact 上傳失敗不影響 job 結果
func mirrorArtifact(ctx context.Context, store repository.ArtifactStore, jobID, path string, log *logger.LogInfo) {
	if store == nil {
		return
	}
	object, err := store.Mirror(ctx, jobID, path)
	if err != nil {
		log.Warn("artifact mirror failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("artifact mirrored", zap.String("object", object))
}
