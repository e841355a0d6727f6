package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/logger"
	"replay_worker/pkg/metrics"

	"go.uber.org/zap"
)

// ffmpeg 結束後等待進度 goroutine 的上限
const progressJoinTimeout = time.Second

// ProgressFunc receives phase progress of a single job
type ProgressFunc func(phase domain.Phase, percent int, message string)

// FFmpegEncoder pipes raw rgb24 frames into ffmpeg and produces an MP4
type FFmpegEncoder struct {
	binary    string
	width     int
	height    int
	frameRate int
	metrics   *metrics.WorkerMetrics
	log       *logger.LogInfo
}

// NewFFmpegEncoder binary is looked up in PATH when it has no separator
func NewFFmpegEncoder(binary string, width, height, frameRate int, m *metrics.WorkerMetrics, log *logger.LogInfo) *FFmpegEncoder {
	return &FFmpegEncoder{
		binary:    binary,
		width:     width,
		height:    height,
		frameRate: frameRate,
		metrics:   m,
		log:       log,
	}
}

// Args ffmpeg command line for outputPath
func (e *FFmpegEncoder) Args(outputPath string) []string {
	return []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", e.width, e.height),
		"-r", strconv.Itoa(e.frameRate),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-progress", "pipe:1",
		"-loglevel", "error",
		outputPath,
	}
}

// Encode writes frames to ffmpeg's stdin while a second goroutine drains its
// progress output. The reader starts before the first frame is written.
func (e *FFmpegEncoder) Encode(ctx context.Context, outputPath string, frames iter.Seq[[]byte], expectedMs int64, progress ProgressFunc) error {
	progress(domain.PhasePrepare, 5, "preparing encoder")

	cmd := exec.CommandContext(ctx, e.binary, e.Args(outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// 子程序繼承的 pipe 不會卡住 Wait
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return domain.EncodeFailed(err, "open ffmpeg stdin")
	}
	// stdout 直接交給子程序，Wait 不必等 reader 讀到 EOF
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return domain.EncodeFailed(err, "open ffmpeg stdout")
	}
	defer stdout.Close()
	cmd.Stdout = stdoutW

	e.log.Debug("starting ffmpeg", zap.String("binary", e.binary), zap.Strings("args", e.Args(outputPath)))
	err = cmd.Start()
	_ = stdoutW.Close()
	if err != nil {
		return domain.EncodeFailed(err, "start ffmpeg")
	}

	readerDone := make(chan struct{})
	waited := false
	defer func() {
		// frames 產生器 panic 時仍要回收子程序
		if !waited {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			e.stopReader(stdout, readerDone)
		}
	}()

	go func() {
		defer close(readerDone)
		consumeProgress(stdout, expectedMs, progress)
	}()

	written, writeErr := writeFrames(stdin, frames)
	e.metrics.AddFrames(written)
	if writeErr == nil {
		writeErr = stdin.Close()
	}
	if writeErr != nil {
		_ = cmd.Process.Kill()
		_ = stdin.Close()
		waited = true
		_ = cmd.Wait()
		e.stopReader(stdout, readerDone)
		e.log.Warn("ffmpeg write failed", zap.Int("framesWritten", written), zap.Error(writeErr))
		return domain.EncodeFailed(writeErr, "write frames to ffmpeg (stderr: %s)", strings.TrimSpace(stderr.String()))
	}

	waited = true
	waitErr := cmd.Wait()
	e.stopReader(stdout, readerDone)
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// ffmpeg 已正常結束，只是還有子程序握著 stderr
		e.log.Warn("ffmpeg exited but its output pipes stayed open", zap.String("output", outputPath))
		waitErr = nil
	}
	if waitErr != nil {
		return domain.EncodeFailed(waitErr, "ffmpeg failed (stderr: %s)", strings.TrimSpace(stderr.String()))
	}

	e.log.Debug("ffmpeg finished", zap.Int("frames", written), zap.String("output", outputPath))
	progress(domain.PhaseEncode, 100, "encode complete")
	return nil
}

func writeFrames(w io.Writer, frames iter.Seq[[]byte]) (int, error) {
	n := 0
	for frame := range frames {
		if _, err := w.Write(frame); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// stopReader 等 progress reader 讀完剩下的輸出，逾時就關掉 pipe 讓它結束
func (e *FFmpegEncoder) stopReader(stdout *os.File, done <-chan struct{}) {
	if joinReader(done, progressJoinTimeout) {
		return
	}
	e.log.Warn("ffmpeg progress pipe still open after exit, closing it")
	_ = stdout.Close()
	joinReader(done, progressJoinTimeout)
}

func joinReader(done <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// consumeProgress parses ffmpeg -progress key=value lines until EOF.
// Only changes in percent are reported.
func consumeProgress(r io.Reader, expectedMs int64, progress ProgressFunc) {
	last := -1
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_ms", "out_time_us":
			if expectedMs <= 0 {
				continue
			}
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				continue
			}
			if percent := ProgressPercent(us, expectedMs); percent != last {
				last = percent
				progress(domain.PhaseEncode, percent, "encoding")
			}
		case "progress":
			if value == "end" {
				last = 99
				progress(domain.PhaseEncode, 99, "finalizing")
			}
		}
	}
	// 掃描失敗時也要把 pipe 讀完，避免 ffmpeg 阻塞
	_, _ = io.Copy(io.Discard, r)
}

// ProgressPercent out_time is reported in microseconds; the result stays in [0, 99]
// until the process has exited.
func ProgressPercent(outTimeUs, expectedMs int64) int {
	if expectedMs <= 0 {
		return 0
	}
	percent := outTimeUs / (expectedMs * 10)
	switch {
	case percent < 0:
		return 0
	case percent > 99:
		return 99
	}
	return int(percent)
}
