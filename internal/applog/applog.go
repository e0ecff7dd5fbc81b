// Package applog carries the logging conventions shared by cmd/hast and
// cmd/haevlo: a trace level below slog's own Debug, selectable with
// --log-level trace. The protocol packages (wsclient, hast) emit no
// records at that level; they do not log individual frames.
package applog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a custom log level below Debug, printed as TRACE by
// ReplaceLevelNames.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a string to a slog.Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLevelNames customizes the level name for Trace in log output.
// Pass as slog.HandlerOptions.ReplaceAttr.
func ReplaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New builds the standard text-handler logger used by both binaries.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: ReplaceLevelNames,
	}))
}
