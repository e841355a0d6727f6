package app

import (
	"context"
	"fmt"
	"os"

	"replay_worker/internal/replay/domain"
	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// ThumbnailExporter REPLAY_THUMBNAIL, renders the middle event as a PNG
type ThumbnailExporter struct {
	committer *Committer
	renderer  *Renderer
	store     repository.ArtifactStore
	log       *logger.LogInfo
}

// NewThumbnailExporter store may be nil
func NewThumbnailExporter(committer *Committer, renderer *Renderer, store repository.ArtifactStore, log *logger.LogInfo) *ThumbnailExporter {
	return &ThumbnailExporter{committer: committer, renderer: renderer, store: store, log: log}
}

func (h *ThumbnailExporter) Export(ctx context.Context, job domain.Job, progress ProgressFunc) (Artifact, error) {
	j, ok := job.(domain.ThumbnailExportJob)
	if !ok {
		return Artifact{}, fmt.Errorf("thumbnail exporter got %s job", job.Type())
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

	res, err := h.committer.Commit(path, ArtifactPNG, func(tmp string) error {
		return h.writePNG(tmp, timeline.Pivot())
	})
	if err != nil {
		return Artifact{}, err
	}
	if !res.Reused {
		progress(domain.PhaseThumbnail, 100, "thumbnail ready")
		mirrorArtifact(ctx, h.store, j.JobID, res.Path, log)
	}
	return Artifact{URI: res.Path, Checksum: res.Checksum, Reused: res.Reused}, nil
}

func (h *ThumbnailExporter) writePNG(path string, s domain.Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := h.renderer.EncodePNG(f, s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
