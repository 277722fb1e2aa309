package safe

import (
	"runtime/debug"

	"EchoChat/logger"

	"go.uber.org/zap"
)

// SafeGo starts f in a goroutine that logs and swallows panics.
func SafeGo(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover is meant to be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[SafeGo] panic recovered",
			zap.String("routine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
