// Package middleware provides the retry, timeout and logging layers that sit
// between a resource and the requestor transport. Each constructor returns a
// [requestor.MiddlewareConfig] for [requestor.WithMiddleware].
//
// Middlewares run outermost-first. The SDK installs them as
//
//	Retry → Timeout → Logging → transport
//
// so every attempt gets its own deadline and its own log entries, while the
// retry loop sees the final outcome of each attempt.
package middleware
