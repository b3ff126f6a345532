package slogobs

import (
	"log/slog"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"compact", FormatCompact},
		{"PRETTY", FormatPretty},
		{" json ", FormatJSON},
		{"yaml", FormatCompact},
		{"", FormatCompact},
	}

	for _, tt := range tests {
		if got := ParseFormat(tt.input); got != tt.expected {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestFormatFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		qianfan  string
		generic  string
		expected Format
	}{
		{"qianfan wins", "pretty", "json", FormatPretty},
		{"generic fallback", "", "json", FormatJSON},
		{"default", "", "", FormatCompact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogFormat, tt.qianfan)
			t.Setenv("LOG_FORMAT", tt.generic)

			if got := FormatFromEnv(); got != tt.expected {
				t.Errorf("FormatFromEnv() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		ok       bool
	}{
		{"trace", LevelTrace, true},
		{"DEBUG", slog.LevelDebug, true},
		{"  info ", slog.LevelInfo, true},
		{"Warning", slog.LevelWarn, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv("LOG_LEVEL", "error")
	if got := LevelFromEnv(); got != slog.LevelError {
		t.Errorf("LevelFromEnv() = %v, want ERROR from LOG_LEVEL", got)
	}

	t.Setenv(EnvLogLevel, "debug")
	if got := LevelFromEnv(); got != slog.LevelDebug {
		t.Errorf("LevelFromEnv() = %v, want DEBUG from %s", got, EnvLogLevel)
	}
}

func TestLevelString(t *testing.T) {
	tests := map[slog.Level]string{
		LevelTrace:      "TRACE",
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARN",
		slog.LevelError: "ERROR",
		12:              "ERROR",
	}
	for level, want := range tests {
		if got := levelString(level); got != want {
			t.Errorf("levelString(%v) = %q, want %q", level, got, want)
		}
	}
}
