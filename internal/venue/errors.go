package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind 对执行场所的失败进行归类，决定路由器的重试行为。
type FailureKind string

const (
	// FailureRejected 表示请求被明确拒绝（鉴权失败、参数非法），不可重试。
	FailureRejected FailureKind = "rejected"
	// FailureThrottled 表示被限流，可重试。
	FailureThrottled FailureKind = "throttled"
	// FailureUnavailable 表示场所端异常（5xx、网络故障），可重试。
	FailureUnavailable FailureKind = "unavailable"
	// FailureTimeout 表示调用超时，可重试。
	FailureTimeout FailureKind = "timeout"
	// FailureMalformed 表示响应无法解析，不可重试。
	FailureMalformed FailureKind = "malformed"
)

// Error 携带场所名与失败类别的错误。
type Error struct {
	Venue   string
	Kind    FailureKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("venue %s: %s (http %d): %s", e.Venue, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("venue %s: %s: %s", e.Venue, e.Kind, e.Message)
}

// KindOf 提取错误的失败类别，非场所错误归为 unavailable。
func KindOf(err error) FailureKind {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureUnavailable
}

// IsRetryable 判断错误是否可以在同一场所内重试。
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case FailureThrottled, FailureUnavailable, FailureTimeout:
		return true
	default:
		return false
	}
}

func classifyStatus(venueName string, status int, message string) *Error {
	kind := FailureUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = FailureRejected
	case status == http.StatusTooManyRequests:
		kind = FailureThrottled
	case status >= 400 && status < 500:
		kind = FailureRejected
	case status >= 500:
		kind = FailureUnavailable
	}
	return &Error{Venue: venueName, Kind: kind, Status: status, Message: message}
}

func classifyTransport(venueName string, err error) *Error {
	kind := FailureUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = FailureTimeout
	}
	return &Error{Venue: venueName, Kind: kind, Message: err.Error()}
}
