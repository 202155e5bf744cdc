// Package logx threads a structured logger through context.Context rather
// than relying on a package-level global, following compozy-compozy's
// pkg/logger FromContext/ContextWithLogger pattern.
package logx

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
)

type ctxKey struct{}

var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Level:           log.InfoLevel,
})

// New builds a logger at the given level ("debug", "info", "warn", "error").
func New(level string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// ContextWithLogger returns a copy of ctx carrying l.
func ContextWithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a package-level default
// if none was attached.
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*log.Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}
