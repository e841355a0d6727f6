package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"replay_worker/internal/replay/domain"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 測試用的小畫面，避免每幀 2.7MB
const (
	testWidth    = 64
	testHeight   = 36
	testInterval = 50
)

// MockPublisher 是 EventPublisher 的 Mock
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishProgress(ctx context.Context, ev domain.ProgressEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) PublishResult(ctx context.Context, ev domain.ResultEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type progressCall struct {
	phase   domain.Phase
	percent int
}

type progressRecorder struct {
	mu    sync.Mutex
	calls []progressCall
}

func (r *progressRecorder) record(phase domain.Phase, percent int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, progressCall{phase: phase, percent: percent})
}

func (r *progressRecorder) snapshot() []progressCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progressCall(nil), r.calls...)
}

const fakeFFmpegOK = `#!/bin/sh
for last in "$@"; do :; done
printf '\000\000\000\030ftypisom' > "$last"
cat >> "$last"
echo "frame=1"
echo "out_time_ms=500000"
echo "progress=continue"
echo "progress=end"
exit 0
`

// 背景子程序繼承 stdout / stderr，ffmpeg 本身已經結束
const fakeFFmpegLingeringChild = `#!/bin/sh
for last in "$@"; do :; done
printf '\000\000\000\030ftypisom' > "$last"
cat >> "$last"
echo "out_time_ms=500000"
sleep 5 &
exit 0
`

const fakeFFmpegFail = `#!/bin/sh
for last in "$@"; do :; done
printf 'partial' > "$last"
echo "boom: encoder exploded" >&2
exit 1
`

// writeFakeFFmpeg 產生一個假的 ffmpeg 腳本，最後一個參數是輸出檔
func writeFakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// writeReplay 寫入 JSONL 檔並回傳路徑
func writeReplay(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

const (
	replayLine0 = `{"offsetMs":0,"snapshot":{"ballX":400,"ballY":240,"leftPaddleY":200,"rightPaddleY":200,"leftScore":0,"rightScore":0,"targetScore":5,"finished":false}}`
	replayLine1 = `{"offsetMs":100,"snapshot":{"ballX":420,"ballY":250,"leftPaddleY":210,"rightPaddleY":190,"leftScore":1,"rightScore":0,"targetScore":5,"finished":true}}`
)
