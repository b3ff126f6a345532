package requestor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/leofalp/qianfan/internal/utils"
	"github.com/leofalp/qianfan/providers/observability"
)

// streamOnce is the innermost StreamFunc. Like sendOnce it refreshes a
// rejected token once, which is only possible before the first chunk.
func (r *Requestor) streamOnce(ctx context.Context, req *Request) (*Stream, error) {
	stream, err := r.openStream(ctx, req)
	if r.refreshOnExpiry(ctx, err) {
		return r.openStream(ctx, req)
	}
	return stream, err
}

func (r *Requestor) openStream(ctx context.Context, req *Request) (*Stream, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	timer := utils.NewTimer()

	ctx, span := r.startSpan(ctx, observability.SpanQianfanStream, req)
	span.SetAttributes(observability.Bool(observability.AttrQianfanStreaming, true))

	httpReq, reqBody, err := r.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, r.failStream(ctx, span, req, err)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, r.failStream(ctx, span, req, fmt.Errorf("%w: %w", ErrTransport, err))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer utils.CloseWithLog(httpResp.Body)
		raw, _ := utils.ReadLimited(httpResp.Body)
		return nil, r.failStream(ctx, span, req, r.statusError(httpReq, httpResp, reqBody, raw))
	}
	r.applyRateLimitHeader(ctx, span, httpResp.Header)

	// The service answers a failing stream request with a plain JSON body.
	if isJSON(httpResp.Header.Get("Content-Type")) {
		defer utils.CloseWithLog(httpResp.Body)
		raw, err := utils.ReadLimited(httpResp.Body)
		if err != nil {
			return nil, r.failStream(ctx, span, req, fmt.Errorf("%w: %w", ErrTransport, err))
		}
		resp, err := parseBody(httpReq, httpResp, raw, req)
		if err != nil {
			return nil, r.failStream(ctx, span, req, err)
		}
		resp.Statistic = Statistic{
			RequestLatency:    timer.Elapsed(),
			FirstTokenLatency: timer.Elapsed(),
			TotalLatency:      timer.Elapsed(),
			StartTimestamp:    timer.StartedAt().UnixMilli(),
		}
		r.succeed(ctx, span, req, resp)
		span.End()
		return NewSingleResponseStream(resp), nil
	}

	span.AddEvent(observability.EventStreamStarted)
	return NewStream(func(yield func(*Response, error) bool) {
		defer span.End()
		defer utils.CloseWithLog(httpResp.Body)

		scanner := utils.NewSSEScanner(httpResp.Body)
		var (
			firstLat time.Duration
			last     *Response
			chunks   int
		)
		for {
			data, err := scanner.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, r.fail(ctx, span, req, fmt.Errorf("%w: %w", ErrTransport, err)))
				return
			}

			resp, err := parseBody(httpReq, httpResp, []byte(data), req)
			if err != nil {
				yield(nil, r.fail(ctx, span, req, err))
				return
			}

			lap := timer.Lap()
			if chunks == 0 {
				firstLat = timer.Elapsed()
				lap = firstLat
			}
			resp.Statistic = Statistic{
				RequestLatency:    lap,
				FirstTokenLatency: firstLat,
				TotalLatency:      timer.Elapsed(),
				StartTimestamp:    timer.StartedAt().UnixMilli(),
			}
			chunks++
			last = resp
			span.AddEvent(observability.EventStreamChunk, observability.Int("chunk", chunks))

			if !yield(resp, nil) {
				return
			}
		}
		if last == nil {
			yield(nil, r.fail(ctx, span, req, &RequestError{
				StatusCode: httpResp.StatusCode,
				URL:        redactURL(httpReq.URL),
				Message:    "stream ended without any chunk",
			}))
			return
		}
		r.succeed(ctx, span, req, last)
	}), nil
}

func (r *Requestor) failStream(ctx context.Context, span observability.Span, req *Request, err error) error {
	err = r.fail(ctx, span, req, err)
	span.End()
	return err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
