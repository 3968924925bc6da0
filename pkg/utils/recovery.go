package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"go.uber.org/zap"
)

// RecoverFn handles a recovered panic value and its stack.
type RecoverFn func(r interface{}, stack []byte)

func logPanic(log *zap.Logger, operation string, r interface{}, stack []byte) {
	if log == nil {
		fmt.Fprintf(os.Stderr, "[PANIC] %s: %v\n%s\n", operation, r, stack)
		return
	}
	log.Error("[panic] recovered",
		zap.String("operation", operation),
		zap.Any("panic", r),
		zap.ByteString("stack", stack),
	)
}

// SafeGo runs fn on its own goroutine. A panic is passed to onPanic, or
// logged under operation when onPanic is nil.
func SafeGo(operation string, fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
					return
				}
				logPanic(logger.Log, operation, r, stack)
			}
		}()
		fn()
	}()
}

// RecoverWithLog is deferred at goroutine boundaries that must not crash
// the process.
func RecoverWithLog(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		logPanic(logger.FromContext(ctx), operation, r, debug.Stack())
	}
}

// WrapWithRecovery converts a panic inside fn into an error.
func WrapWithRecovery(ctx context.Context, operation string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger.FromContext(ctx), operation, r, debug.Stack())
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return fn(ctx)
}
