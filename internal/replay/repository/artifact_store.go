package repository

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Uploader the part of *database.MinIOClient the store needs
type Uploader interface {
	UploadFile(ctx context.Context, objectName, filePath, contentType string) error
}

// ArtifactStore copies committed exports to object storage
type ArtifactStore interface {
	Mirror(ctx context.Context, jobID, localPath string) (string, error)
}

type artifactStore struct {
	uploader Uploader
	prefix   string
}

// NewArtifactStore objects land under <prefix>/<jobId>/<file name>
func NewArtifactStore(uploader Uploader, prefix string) ArtifactStore {
	return &artifactStore{uploader: uploader, prefix: strings.Trim(prefix, "/")}
}

// Mirror returns the object name
func (s *artifactStore) Mirror(ctx context.Context, jobID, localPath string) (string, error) {
	objectName := path.Join(s.prefix, jobID, filepath.Base(localPath))
	if err := s.uploader.UploadFile(ctx, objectName, localPath, getContentType(localPath)); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return objectName, nil
}

func getContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
