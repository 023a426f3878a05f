//go:build unix

package logging

import (
	"errors"
	"syscall"
)

func isTerminalSyncErr(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
