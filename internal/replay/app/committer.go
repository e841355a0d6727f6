package app

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ArtifactKind decides how an existing file is recognised as finished output
type ArtifactKind int

const (
	ArtifactMP4 ArtifactKind = iota
	ArtifactPNG
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func (k ArtifactKind) String() string {
	if k == ArtifactPNG {
		return "png"
	}
	return "mp4"
}

// CommitResult finalized artifact
type CommitResult struct {
	Path     string
	Checksum string
	Reused   bool
}

// Committer sandboxes output paths under one export root and publishes files
// with a temp-then-rename so a partial artifact is never visible.
type Committer struct {
	root string
	log  *logger.LogInfo
}

// NewCommitter root is canonicalised once; symlinks in it are resolved when it exists
func NewCommitter(root string, log *logger.LogInfo) (*Committer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve export root %s: %w", root, err)
	}
	return &Committer{root: resolveExisting(abs), log: log}, nil
}

// Root canonical export root
func (c *Committer) Root() string {
	return c.root
}

// Resolve maps a requested output path to its canonical location inside the root.
// Relative paths are taken relative to the root.
func (c *Committer) Resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.InvalidOutputPath("outputPath is empty")
	}
	if strings.HasPrefix(raw, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
		}
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(c.root, raw)
	}
	resolved := resolveExisting(filepath.Clean(raw))

	rel, err := filepath.Rel(c.root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.InvalidOutputPath("%s is outside the export root", raw)
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return "", domain.InvalidOutputPath("%s is a directory", raw)
	}
	return resolved, nil
}

// Commit returns the existing artifact when it already passes the signature check;
// otherwise write is called with a sibling temp path that is renamed into place.
// On failure neither the temp file nor the final path remains.
func (c *Committer) Commit(path string, kind ArtifactKind, write func(tmpPath string) error) (CommitResult, error) {
	if _, err := os.Lstat(path); err == nil {
		if validArtifact(path, kind) {
			sum, err := checksumFile(path)
			if err != nil {
				return CommitResult{}, err
			}
			c.log.Info("artifact already committed, reusing", zap.String("path", path), zap.String("kind", kind.String()))
			return CommitResult{Path: path, Checksum: sum, Reused: true}, nil
		}
		if err := os.Remove(path); err != nil {
			return CommitResult{}, fmt.Errorf("remove stale %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return CommitResult{}, fmt.Errorf("create output directory: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	fail := func(err error) (CommitResult, error) {
		removeQuietly(tmp)
		removeQuietly(path)
		return CommitResult{}, err
	}

	if err := write(tmp); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fail(fmt.Errorf("rename %s: %w", tmp, err))
	}
	sum, err := checksumFile(path)
	if err != nil {
		return fail(err)
	}
	return CommitResult{Path: path, Checksum: sum}, nil
}

func validArtifact(path string, kind ArtifactKind) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}
	head := make([]byte, 256)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	head = head[:n]

	switch kind {
	case ArtifactPNG:
		return bytes.HasPrefix(head, pngMagic)
	default:
		return bytes.Contains(head, []byte("ftyp"))
	}
}

// checksumFile sha256 hex of the whole file
func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveExisting follows symlinks on the deepest existing ancestor and
// re-attaches the part of the path that does not exist yet.
func resolveExisting(path string) string {
	existing := path
	var rest []string
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
