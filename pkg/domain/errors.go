package domain

import (
	"errors"
	"fmt"

	"spectral/pkg/errx"
)

// 生命周期相关错误
var (
	ErrInvalidState    = errors.New("invalid capture state")
	ErrNothingToExport = errors.New("nothing to export")
)

// 目标相关错误
var ErrTargetNotFound = errors.New("target not found")

// 连接相关错误
var (
	ErrDevToolsUnreachable = errors.New("devtools unreachable")
	ErrSessionDetached     = errors.New("session detached")
)

// 数据库相关错误
var ErrRecordNotFound = errors.New("record not found")

// NewInvalidStateError 创建状态不匹配错误，消息中带上被拒绝时所处的状态
func NewInvalidStateError(op string, current CaptureState) error {
	return errx.Wrap(errx.CodeInvalidState, ErrInvalidState, fmt.Sprintf("cannot %s while %s", op, current))
}
