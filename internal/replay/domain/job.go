package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// JobType job-type tag on the request stream
type JobType string

const (
	// JobTypeExportVideo full replay to MP4
	JobTypeExportVideo JobType = "REPLAY_EXPORT_MP4"
	// JobTypeExportThumbnail single PNG frame
	JobTypeExportThumbnail JobType = "REPLAY_THUMBNAIL"
)

// 舊名稱，與上面兩種等價
var jobTypeAliases = map[string]JobType{
	"EXPORT_VIDEO":     JobTypeExportVideo,
	"EXPORT_THUMBNAIL": JobTypeExportThumbnail,
}

// Phase progress phase
type Phase string

const (
	PhaseQueue     Phase = "QUEUE"
	PhasePrepare   Phase = "PREPARE"
	PhaseEncode    Phase = "ENCODE"
	PhaseThumbnail Phase = "THUMBNAIL"
)

// Status terminal job status
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// 請求欄位名稱
const (
	FieldJobID     = "jobId"
	FieldJobType   = "jobType"
	FieldReplayID  = "replayId"
	OptionInput    = "inputPath"
	OptionOutput   = "outputPath"
	OptionDuration = "durationMs"
)

// JobRequest request as delivered by the stream; never mutated after decode
type JobRequest struct {
	JobID    string
	JobType  string
	ReplayID string
	Options  map[string]string
}

// JobRequestFromValues 把 stream 欄位轉成 JobRequest，jobId/jobType/replayId 以外都是 options
func JobRequestFromValues(values map[string]interface{}) JobRequest {
	req := JobRequest{Options: make(map[string]string, len(values))}
	for k, v := range values {
		s := fmt.Sprint(v)
		switch k {
		case FieldJobID:
			req.JobID = s
		case FieldJobType:
			req.JobType = s
		case FieldReplayID:
			req.ReplayID = s
		default:
			req.Options[k] = s
		}
	}
	return req
}

// Addressable a result can only be sent when both id and type are present
func (r JobRequest) Addressable() bool {
	return strings.TrimSpace(r.JobID) != "" && strings.TrimSpace(r.JobType) != ""
}

// ResolveJobType normalises the tag, ok=false for unknown types
func ResolveJobType(raw string) (JobType, bool) {
	raw = strings.TrimSpace(raw)
	switch t := JobType(raw); t {
	case JobTypeExportVideo, JobTypeExportThumbnail:
		return t, true
	}
	if t, ok := jobTypeAliases[raw]; ok {
		return t, true
	}
	return "", false
}

// Job typed job variant, validated before it reaches a handler
type Job interface {
	Type() JobType
	ID() string
}

// VideoExportJob REPLAY_EXPORT_MP4
type VideoExportJob struct {
	JobID      string
	ReplayID   string
	InputPath  string
	OutputPath string
	DurationMs int64
}

func (j VideoExportJob) Type() JobType { return JobTypeExportVideo }
func (j VideoExportJob) ID() string    { return j.JobID }

// ThumbnailExportJob REPLAY_THUMBNAIL
type ThumbnailExportJob struct {
	JobID      string
	ReplayID   string
	InputPath  string
	OutputPath string
}

func (j ThumbnailExportJob) Type() JobType { return JobTypeExportThumbnail }
func (j ThumbnailExportJob) ID() string    { return j.JobID }

// ErrUnsupportedType returned by ParseJob for unknown tags
type ErrUnsupportedType struct {
	JobType string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported job type %q", e.JobType)
}

// ParseJob validates required options and builds the typed job.
// outputPath is checked before inputPath, matching the order handlers fail in.
func ParseJob(req JobRequest) (Job, error) {
	jobType, ok := ResolveJobType(req.JobType)
	if !ok {
		return nil, &ErrUnsupportedType{JobType: req.JobType}
	}

	output := strings.TrimSpace(req.Options[OptionOutput])
	if output == "" {
		return nil, InvalidOutputPath("outputPath is empty")
	}
	input := strings.TrimSpace(req.Options[OptionInput])
	if input == "" {
		return nil, InvalidReplayFormat("inputPath is empty")
	}

	switch jobType {
	case JobTypeExportVideo:
		return VideoExportJob{
			JobID:      req.JobID,
			ReplayID:   req.ReplayID,
			InputPath:  input,
			OutputPath: output,
			DurationMs: parseDurationHint(req.Options[OptionDuration]),
		}, nil
	default:
		return ThumbnailExportJob{
			JobID:      req.JobID,
			ReplayID:   req.ReplayID,
			InputPath:  input,
			OutputPath: output,
		}, nil
	}
}

// durationMs 只是提示值，無法解析或為負時視為 0
func parseDurationHint(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ProgressEvent informational progress, never required for correctness
type ProgressEvent struct {
	JobID    string
	Progress int
	Phase    Phase
	Message  string
}

// Values stream fields
func (p ProgressEvent) Values() map[string]interface{} {
	return map[string]interface{}{
		"jobId":    p.JobID,
		"progress": strconv.Itoa(p.Progress),
		"phase":    string(p.Phase),
		"message":  p.Message,
	}
}

// ResultEvent the single terminal outcome of a job
type ResultEvent struct {
	JobID        string `json:"jobId"`
	Status       Status `json:"status"`
	ResultURI    string `json:"resultUri"`
	Checksum     string `json:"checksum"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Succeeded result for a committed artifact
func Succeeded(jobID, uri, checksum string) ResultEvent {
	return ResultEvent{JobID: jobID, Status: StatusSucceeded, ResultURI: uri, Checksum: checksum}
}

// Failed result carrying an error code
func Failed(jobID, code, message string) ResultEvent {
	return ResultEvent{JobID: jobID, Status: StatusFailed, ErrorCode: code, ErrorMessage: message}
}

// Values stream fields
func (r ResultEvent) Values() map[string]interface{} {
	return map[string]interface{}{
		"jobId":        r.JobID,
		"status":       string(r.Status),
		"resultUri":    r.ResultURI,
		"checksum":     r.Checksum,
		"errorCode":    r.ErrorCode,
		"errorMessage": r.ErrorMessage,
	}
}
