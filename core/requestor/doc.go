// Package requestor performs the HTTP round trips behind every Qianfan
// resource.
//
// A Requestor rate limits, authenticates and sends a Request, checks the
// HTTP status and the error_code field of the body, and returns a Response
// annotated with latency statistics. Streaming calls decode the SSE body
// chunk by chunk into a Stream. Retries, deadlines and logging are layered
// on top through the middleware chain; see package middleware.
package requestor
