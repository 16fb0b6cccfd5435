//go:build unix

package fsx

import (
	"errors"
	"os"
	"syscall"
)

// isEXDEV 识别 rename(2) 返回的跨文件系统错误（直接值或包在 LinkError 里）。
func isEXDEV(err error) bool {
	if errors.Is(err, syscall.EXDEV) {
		return true
	}
	var le *os.LinkError
	if errors.As(err, &le) && errors.Is(le.Err, syscall.EXDEV) {
		return true
	}
	return false
}
