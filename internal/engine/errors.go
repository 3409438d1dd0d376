package engine

import (
	"errors"
	"fmt"
)

// ValidationError 表示请求参数非法，任何状态都未被改变。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("engine: 参数 %s 非法: %s", e.Field, e.Reason)
}

// IsValidation 判断错误是否为参数校验失败。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConflictError 表示请求与当前持仓状态冲突。
type ConflictError struct {
	PositionID string
	Reason     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("engine: 持仓 %s 状态冲突: %s", e.PositionID, e.Reason)
}

// IsConflict 判断错误是否为状态冲突。
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
