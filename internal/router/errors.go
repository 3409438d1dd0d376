package router

import (
	"errors"
	"fmt"
)

// ErrorKind 对提交失败进行归类。
type ErrorKind string

const (
	// ErrKindQuote 表示询价阶段失败，触发切换场所，不对调用方单独暴露。
	ErrKindQuote ErrorKind = "quote"
	// ErrKindVenueRejected 表示场所明确拒绝，不可重试。
	ErrKindVenueRejected ErrorKind = "venue_rejected"
	// ErrKindTransient 表示限流、超时等瞬时故障，按策略重试后升级。
	ErrKindTransient ErrorKind = "transient"
	// ErrKindExhausted 表示主备场所均已失败，本次提交终止。
	ErrKindExhausted ErrorKind = "all_venues_exhausted"
)

// SubmissionError 携带失败类别与完整的尝试轨迹。
type SubmissionError struct {
	Kind     ErrorKind
	Attempts []ExecutionAttempt
	cause    error
}

func (e *SubmissionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("router: %s (attempts=%d): %v", e.Kind, len(e.Attempts), e.cause)
	}
	return fmt.Sprintf("router: %s (attempts=%d)", e.Kind, len(e.Attempts))
}

func (e *SubmissionError) Unwrap() error {
	return e.cause
}

// IsExhausted 判断错误是否为主备场所均失败。
func IsExhausted(err error) bool {
	var subErr *SubmissionError
	return errors.As(err, &subErr) && subErr.Kind == ErrKindExhausted
}

// AttemptTrail 提取错误中携带的尝试轨迹。
func AttemptTrail(err error) []ExecutionAttempt {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Attempts
	}
	return nil
}
