package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRequestFromValues(t *testing.T) {
	req := JobRequestFromValues(map[string]interface{}{
		"jobId":      "job-1",
		"jobType":    "REPLAY_EXPORT_MP4",
		"replayId":   "r-9",
		"inputPath":  "/in/a.jsonl",
		"outputPath": "/out/a.mp4",
		"durationMs": "1200",
	})

	assert.Equal(t, "job-1", req.JobID)
	assert.Equal(t, "REPLAY_EXPORT_MP4", req.JobType)
	assert.Equal(t, "r-9", req.ReplayID)
	assert.Equal(t, map[string]string{
		"inputPath":  "/in/a.jsonl",
		"outputPath": "/out/a.mp4",
		"durationMs": "1200",
	}, req.Options)
	assert.True(t, req.Addressable())
	assert.False(t, JobRequest{JobID: "x"}.Addressable())
}

func TestParseJobVideo(t *testing.T) {
	job, err := ParseJob(JobRequest{
		JobID:   "job-1",
		JobType: "EXPORT_VIDEO",
		Options: map[string]string{"inputPath": "in.jsonl", "outputPath": "out.mp4", "durationMs": "abc"},
	})
	require.NoError(t, err)

	video, ok := job.(VideoExportJob)
	require.True(t, ok)
	assert.Equal(t, JobTypeExportVideo, video.Type())
	assert.Equal(t, "in.jsonl", video.InputPath)
	assert.Equal(t, int64(0), video.DurationMs)
}

func TestParseJobThumbnail(t *testing.T) {
	job, err := ParseJob(JobRequest{
		JobID:   "job-2",
		JobType: "REPLAY_THUMBNAIL",
		Options: map[string]string{"inputPath": "in.jsonl", "outputPath": "thumb.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, JobTypeExportThumbnail, job.Type())
	assert.Equal(t, "job-2", job.ID())
}

func TestParseJobErrors(t *testing.T) {
	_, err := ParseJob(JobRequest{JobID: "j", JobType: "BOGUS"})
	var unsupported *ErrUnsupportedType
	assert.ErrorAs(t, err, &unsupported)

	_, err = ParseJob(JobRequest{JobID: "j", JobType: "REPLAY_THUMBNAIL", Options: map[string]string{"inputPath": "x"}})
	assert.Equal(t, CodeInvalidOutputPath, ErrorCode(err))

	_, err = ParseJob(JobRequest{JobID: "j", JobType: "REPLAY_THUMBNAIL", Options: map[string]string{"outputPath": "x.png"}})
	assert.Equal(t, CodeInvalidReplayFormat, ErrorCode(err))
}

func TestEventValues(t *testing.T) {
	progress := ProgressEvent{JobID: "j", Progress: 42, Phase: PhaseEncode, Message: "encoding"}
	assert.Equal(t, "42", progress.Values()["progress"])
	assert.Equal(t, "ENCODE", progress.Values()["phase"])

	failed := Failed("j", CodeUnsupportedType, "nope")
	values := failed.Values()
	assert.Equal(t, "FAILED", values["status"])
	assert.Equal(t, "UNSUPPORTED_TYPE", values["errorCode"])
	assert.Equal(t, "", values["checksum"])
}
