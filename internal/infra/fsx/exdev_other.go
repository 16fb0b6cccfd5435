//go:build !unix

package fsx

import (
	"errors"
	"os"
	"syscall"
)

// Windows 上跨盘 rename 返回 ERROR_NOT_SAME_DEVICE（0x11）；
// 统一按 EXDEV 语义处理，让 MoveFile 的 copy+delete 退化路径生效。
const errNotSameDevice = syscall.Errno(0x11)

func isEXDEV(err error) bool {
	if errors.Is(err, errNotSameDevice) {
		return true
	}
	var le *os.LinkError
	if errors.As(err, &le) && errors.Is(le.Err, errNotSameDevice) {
		return true
	}
	return false
}
