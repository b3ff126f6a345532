package middleware

import (
	"context"
	"time"

	"github.com/leofalp/qianfan/core/requestor"
)

// NewTimeoutMiddleware bounds each call by timeout, or by Request.Timeout
// when set. A non-positive timeout leaves the context untouched.
//
// For streams the deadline covers the whole stream: the context is
// cancelled once the iterator finishes, fails or is abandoned, not when the
// first chunk arrives.
func NewTimeoutMiddleware(timeout time.Duration) requestor.MiddlewareConfig {
	return requestor.MiddlewareConfig{
		Send:   buildSendTimeout(timeout),
		Stream: buildStreamTimeout(timeout),
	}
}

func effectiveTimeout(def time.Duration, req *requestor.Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return def
}

func buildSendTimeout(timeout time.Duration) requestor.Middleware {
	return func(next requestor.SendFunc) requestor.SendFunc {
		return func(ctx context.Context, req *requestor.Request) (*requestor.Response, error) {
			d := effectiveTimeout(timeout, req)
			if d <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

func buildStreamTimeout(timeout time.Duration) requestor.StreamMiddleware {
	return func(next requestor.StreamFunc) requestor.StreamFunc {
		return func(ctx context.Context, req *requestor.Request) (*requestor.Stream, error) {
			d := effectiveTimeout(timeout, req)
			if d <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)

			stream, err := next(ctx, req)
			if err != nil {
				cancel()
				return nil, err
			}
			return wrapStreamWithCancel(stream, cancel), nil
		}
	}
}

func wrapStreamWithCancel(stream *requestor.Stream, cancel context.CancelFunc) *requestor.Stream {
	return requestor.NewStream(func(yield func(*requestor.Response, error) bool) {
		defer cancel()
		for resp, err := range stream.Iter() {
			if !yield(resp, err) || err != nil {
				return
			}
		}
	})
}
