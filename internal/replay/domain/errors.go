package domain

import errprocess "replay_worker/pkg/err"

// 結果事件的 errorCode
const (
	CodeInvalidOutputPath   = "INVALID_OUTPUT_PATH"
	CodeInvalidReplayFormat = "INVALID_REPLAY_FORMAT"
	CodeEncodeFailed        = "FFMPEG_FAILED"
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeWorkerError         = "WORKER_ERROR"
)

// InvalidOutputPath sandbox violation or empty path
func InvalidOutputPath(format string, args ...interface{}) error {
	return errprocess.New(CodeInvalidOutputPath, format, args...)
}

// InvalidReplayFormat structural defect of the replay input
func InvalidReplayFormat(format string, args ...interface{}) error {
	return errprocess.New(CodeInvalidReplayFormat, format, args...)
}

// EncodeFailed encoder exited non-zero or the pipe broke
func EncodeFailed(err error, format string, args ...interface{}) error {
	if err == nil {
		return errprocess.New(CodeEncodeFailed, format, args...)
	}
	return errprocess.Wrap(CodeEncodeFailed, err, format, args...)
}

// ErrorCode 取得 err 對應的 errorCode，未分類的錯誤一律是 WORKER_ERROR
func ErrorCode(err error) string {
	return errprocess.CodeOf(err, CodeWorkerError)
}
