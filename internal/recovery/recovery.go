// Package recovery contains panics raised by readiness handlers so that one
// misbehaving endpoint cannot bring down the event loop.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverWithLog recovers from panics and logs them with the provided logger.
// Use it with defer around a handler invocation:
//
//	func() {
//	    defer recovery.RecoverWithLog(logger, "accept")
//	    local.Accept(consume)
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
	}
}

// RecoverWithCallback recovers from panics, logs them, and calls the optional
// callback with the recovered value.
func RecoverWithCallback(logger *slog.Logger, name string, callback func(recovered any)) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
		if callback != nil {
			callback(r)
		}
	}
}

func logPanic(logger *slog.Logger, name string, r any) {
	logger.Error("panic recovered",
		"handler", name,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
}
