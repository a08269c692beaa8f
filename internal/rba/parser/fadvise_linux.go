//go:build linux

package parser

import (
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/podtrace/rbatrace/internal/logger"
)

func adviseSequential(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL); err != nil {
		logger.Debug("fadvise failed", zap.String("file", f.Name()), zap.Error(err))
	}
}
