// Package applog provides the context-scoped structured logger used
// throughout the core. Call sites fetch a logger with From(ctx) the same way
// the reference server's controller/provider code calls Log(ctx); nothing
// here is specific to any one component.
package applog

import (
	"context"
	"log/slog"
	"os"

	charm "github.com/charmbracelet/log"
)

type ctxKey struct{}

var base = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportCaller:    false,
	ReportTimestamp: true,
})

// Context returns a derived context carrying logger.
func Context(ctx context.Context, logger *charm.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger stored in ctx, or the package default if none was
// attached.
func From(ctx context.Context) *charm.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*charm.Logger); ok && l != nil {
		return l
	}
	return base
}

// SetLevel adjusts the default logger's verbosity, used by the CLI's
// --verbose flag.
func SetLevel(level charm.Level) {
	base.SetLevel(level)
}

// SlogHandler returns a slog text handler writing to stderr, for third-party
// libraries that only accept slog. It is separate from the package's
// charm logger and does not follow its level (SetLevel) or format.
func SlogHandler() slog.Handler {
	return slog.NewTextHandler(os.Stderr, nil)
}
