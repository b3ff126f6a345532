// Package utils provides shared low-level helpers used throughout the qianfan
// internals: a Server-Sent Events scanner for streamed model output, bounded
// response-body reading, tolerant JSON parsing, secret masking for error
// messages, pointer and string helpers, and a simple elapsed-time timer.
//
// Key entry points: [SSEScanner] for reading streamed chunks, [ReadLimited]
// and [CloseWithLog] for HTTP bodies, [ParseStringAs] for parsing model
// generated JSON, and [MaskSecret] for credential-safe diagnostics.
package utils
