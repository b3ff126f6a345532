package slogobs

import (
	"log/slog"
	"strings"
)

// LevelTrace sits below slog.LevelDebug and is used for per-chunk stream events.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name onto a slog.Level. Unknown or empty input
// yields slog.LevelInfo and ok=false.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// LevelFromEnv reads QIANFAN_LOG_LEVEL, then LOG_LEVEL, defaulting to INFO.
func LevelFromEnv() slog.Level {
	level, _ := ParseLevel(firstEnv(EnvLogLevel, "LOG_LEVEL"))
	return level
}

// levelString names level the way the handler prints it.
func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
