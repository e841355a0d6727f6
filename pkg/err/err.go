package errprocess

import (
	"errors"
	"fmt"
)

// CodedError 帶有錯誤代碼的錯誤，Code 會原樣寫入結果事件的 errorCode
type CodedError struct {
	Code string
	Msg  string
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}

// New build a coded error from a formatted message
func New(code, format string, args ...interface{}) error {
	return &CodedError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attach a code to err. A nil err yields nil.
func Wrap(code string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf 取出最外層的錯誤代碼，沒有時回傳 fallback
func CodeOf(err error, fallback string) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return fallback
}
