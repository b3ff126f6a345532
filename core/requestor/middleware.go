package requestor

import "context"

// SendFunc performs a single request.
type SendFunc func(ctx context.Context, req *Request) (*Response, error)

// StreamFunc opens a streaming request.
type StreamFunc func(ctx context.Context, req *Request) (*Stream, error)

// Middleware wraps a SendFunc. The first middleware given to New is the
// outermost wrapper.
type Middleware func(next SendFunc) SendFunc

// StreamMiddleware is the streaming counterpart of Middleware.
type StreamMiddleware func(next StreamFunc) StreamFunc

// MiddlewareConfig pairs a send middleware with an optional stream one.
// Send is required; a nil Stream means streaming calls skip this entry.
type MiddlewareConfig struct {
	Send   Middleware
	Stream StreamMiddleware
}

// buildSendChain applies middlewares in reverse so middlewares[0] runs first.
func buildSendChain(base SendFunc, middlewares []MiddlewareConfig) SendFunc {
	chain := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i].Send(chain)
	}
	return chain
}

// buildStreamChain is buildSendChain for streams, skipping entries whose
// Stream is nil.
func buildStreamChain(base StreamFunc, middlewares []MiddlewareConfig) StreamFunc {
	chain := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i].Stream != nil {
			chain = middlewares[i].Stream(chain)
		}
	}
	return chain
}
