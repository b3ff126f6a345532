// Package slogobs implements observability.Provider on top of log/slog.
//
// Spans and metric updates are emitted as debug records, so a single
// handler configuration controls everything the SDK reports. The handler
// renders compact, pretty, or JSON lines; the defaults come from
// QIANFAN_LOG_FORMAT and QIANFAN_LOG_LEVEL.
package slogobs
