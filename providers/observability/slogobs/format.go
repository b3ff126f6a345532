package slogobs

import (
	"os"
	"strings"
)

// Format selects how the Handler renders a record.
type Format string

const (
	// FormatCompact writes one line per record with attributes as a JSON object:
	//	2025-11-03 10:40:35 DEBUG chat request → {"model":"ERNIE-Bot"}
	FormatCompact Format = "compact"

	// FormatPretty writes the message on one line and each attribute below it.
	FormatPretty Format = "pretty"

	// FormatJSON writes a single JSON object per record.
	FormatJSON Format = "json"
)

// Environment variables consulted by FormatFromEnv and LevelFromEnv. The
// generic LOG_* names are used only when the QIANFAN_* ones are unset.
const (
	EnvLogFormat = "QIANFAN_LOG_FORMAT"
	EnvLogLevel  = "QIANFAN_LOG_LEVEL"
)

// ParseFormat maps s onto a Format, falling back to FormatCompact.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPretty:
		return FormatPretty
	case FormatJSON:
		return FormatJSON
	default:
		return FormatCompact
	}
}

// FormatFromEnv reads QIANFAN_LOG_FORMAT, then LOG_FORMAT.
func FormatFromEnv() Format {
	return ParseFormat(firstEnv(EnvLogFormat, "LOG_FORMAT"))
}

func (f Format) String() string {
	return string(f)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
