//go:build unix

package fsx

import (
	"errors"
	"os"
	"syscall"
)

// isEXDEV 同时识别裸 errno 与 *os.LinkError 包装的 EXDEV。
func isEXDEV(err error) bool {
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return errors.Is(err, syscall.EXDEV)
}
