package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/internal/utils"
)

// LogLevel controls how much the logging middleware writes per call.
type LogLevel int

const (
	// LogLevelMinimal logs resource, model, duration and token usage.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds the endpoint, request id and latency breakdown.
	LogLevelStandard

	// LogLevelVerbose adds request and response bodies, truncated.
	//
	// Bodies contain prompts and generated text. Do not enable it in production.
	LogLevelVerbose
)

const truncateLen = 500

// NewLoggingMiddleware logs every call before and after it runs. For streams
// the completion entry is written when the iterator ends.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) requestor.MiddlewareConfig {
	return requestor.MiddlewareConfig{
		Send:   buildSendLogging(logger, level),
		Stream: buildStreamLogging(logger, level),
	}
}

func buildSendLogging(logger *slog.Logger, level LogLevel) requestor.Middleware {
	return func(next requestor.SendFunc) requestor.SendFunc {
		return func(ctx context.Context, req *requestor.Request) (*requestor.Response, error) {
			logger.InfoContext(ctx, "qianfan request", requestAttrs(req, level)...)

			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				logger.ErrorContext(ctx, "qianfan request failed", failureAttrs(req, time.Since(start), err)...)
				return nil, err
			}

			logger.InfoContext(ctx, "qianfan request completed", responseAttrs(req, resp, time.Since(start), level)...)
			return resp, nil
		}
	}
}

func buildStreamLogging(logger *slog.Logger, level LogLevel) requestor.StreamMiddleware {
	return func(next requestor.StreamFunc) requestor.StreamFunc {
		return func(ctx context.Context, req *requestor.Request) (*requestor.Stream, error) {
			logger.InfoContext(ctx, "qianfan stream", requestAttrs(req, level)...)

			start := time.Now()
			stream, err := next(ctx, req)
			if err != nil {
				logger.ErrorContext(ctx, "qianfan stream failed", failureAttrs(req, time.Since(start), err)...)
				return nil, err
			}
			return wrapStreamWithLogging(ctx, stream, logger, req, level, start), nil
		}
	}
}

func wrapStreamWithLogging(
	ctx context.Context,
	stream *requestor.Stream,
	logger *slog.Logger,
	req *requestor.Request,
	level LogLevel,
	start time.Time,
) *requestor.Stream {
	return requestor.NewStream(func(yield func(*requestor.Response, error) bool) {
		var (
			last   *requestor.Response
			chunks int
		)
		for resp, err := range stream.Iter() {
			if err != nil {
				logger.ErrorContext(ctx, "qianfan stream failed", failureAttrs(req, time.Since(start), err)...)
				yield(nil, err)
				return
			}
			last = resp
			chunks++
			if !yield(resp, nil) {
				logger.InfoContext(ctx, "qianfan stream abandoned",
					slog.String("model", req.Model),
					slog.Int("chunks", chunks),
					slog.Duration("duration", time.Since(start)),
				)
				return
			}
		}

		attrs := []any{slog.Int("chunks", chunks)}
		if last != nil {
			attrs = append(attrs, responseAttrs(req, last, time.Since(start), level)...)
		} else {
			attrs = append(attrs, slog.String("model", req.Model), slog.Duration("duration", time.Since(start)))
		}
		logger.InfoContext(ctx, "qianfan stream completed", attrs...)
	})
}

func requestAttrs(req *requestor.Request, level LogLevel) []any {
	attrs := []any{
		slog.String("resource", req.Resource),
		slog.String("model", req.Model),
	}
	if level >= LogLevelStandard && req.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", req.Endpoint))
	}
	if level >= LogLevelVerbose && req.JSONBody != nil {
		attrs = append(attrs, slog.String("body", utils.TruncateString(utils.JSONToString(req.JSONBody), truncateLen)))
	}
	return attrs
}

func failureAttrs(req *requestor.Request, elapsed time.Duration, err error) []any {
	return []any{
		slog.String("resource", req.Resource),
		slog.String("model", req.Model),
		slog.Duration("duration", elapsed),
		slog.String("error", err.Error()),
	}
}

func responseAttrs(req *requestor.Request, resp *requestor.Response, elapsed time.Duration, level LogLevel) []any {
	attrs := []any{
		slog.String("resource", req.Resource),
		slog.String("model", req.Model),
		slog.Duration("duration", elapsed),
	}
	if usage, ok := resp.Body["usage"].(map[string]any); ok {
		for _, key := range []string{"prompt_tokens", "completion_tokens", "total_tokens"} {
			if n, ok := usage[key].(float64); ok {
				attrs = append(attrs, slog.Int(key, int(n)))
			}
		}
	}
	if level >= LogLevelStandard {
		if id, ok := resp.Body["id"].(string); ok {
			attrs = append(attrs, slog.String("id", id))
		}
		attrs = append(attrs,
			slog.Duration("request_latency", resp.Statistic.RequestLatency),
			slog.Duration("total_latency", resp.Statistic.TotalLatency),
		)
		if resp.Statistic.FirstTokenLatency > 0 {
			attrs = append(attrs, slog.Duration("first_token_latency", resp.Statistic.FirstTokenLatency))
		}
	}
	if level >= LogLevelVerbose {
		attrs = append(attrs, slog.String("body", utils.TruncateString(string(resp.Raw), truncateLen)))
	}
	return attrs
}
