// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics, and structured logging throughout the qianfan SDK.
//
// [Provider] composes [Tracer], [Metrics] and [Logger] into one injectable
// dependency. It travels through a [context.Context]: attach it with
// [ContextWithObserver] and a request-scoped [Span] with [ContextWithSpan];
// the requestor and the resource clients pick them up with
// [ObserverFromContext] and [SpanFromContext]. Nothing is recorded when the
// context carries neither.
//
// Implementations live in the slogobs (log/slog) and promobs (Prometheus)
// subpackages; [Combine] merges a metrics backend into another provider.
package observability
