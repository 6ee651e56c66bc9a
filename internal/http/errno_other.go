//go:build !unix

package http

import (
	"fmt"
	"syscall"
)

func errnoName(errno syscall.Errno) string {
	return fmt.Sprintf("ERRNO%d", int(errno))
}
