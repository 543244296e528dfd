package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is used for register level logging. It sits below slog.LevelDebug.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogAttrs logs to l if l is not nil.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// LogEnabled reports whether l would emit a record at lvl.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}
