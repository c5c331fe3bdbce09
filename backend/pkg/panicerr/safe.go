package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic is returned as an error instead of crashing
// the process.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for functions that take a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Logged runs fn and logs any returned error or recovered panic under msg.
// It is meant for fire-and-forget work where no caller can receive the error.
func Logged(ctx context.Context, msg string, fn func(context.Context) error) {
	if err := SafeContext(fn)(ctx); err != nil {
		slog.ErrorContext(ctx, msg, "error", err)
	}
}
