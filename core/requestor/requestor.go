package requestor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/leofalp/qianfan/core/auth"
	"github.com/leofalp/qianfan/core/ratelimit"
	"github.com/leofalp/qianfan/internal/utils"
	"github.com/leofalp/qianfan/providers/observability"
)

const (
	headerRequestID      = "X-Request-Id"
	headerBceErrorCode   = "X-Bce-Error-Code"
	headerBceErrorMsg    = "X-Bce-Error-Message"
	headerRateLimitLimit = "X-Ratelimit-Limit-Requests"

	msgCredentialNotFound = "NotFound, cause: Could not find credential."
	msgSignatureMismatch  = "SignatureDoesNotMatch, cause: Fail to authn user: Signature does not match"
)

// Requestor sends requests through the middleware chain. It is safe for
// concurrent use.
type Requestor struct {
	client      *http.Client
	auth        auth.Authenticator
	limiter     *ratelimit.Limiter
	obs         observability.Provider
	middlewares []MiddlewareConfig

	// accessKey and secretKey only feed the possible-reason hint of a
	// RequestError; they are never sent.
	accessKey string
	secretKey string

	send   SendFunc
	stream StreamFunc
}

// Option configures a Requestor.
type Option func(*Requestor)

// WithHTTPClient sets the HTTP client. Defaults to a client without timeout;
// deadlines come from the context.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Requestor) {
		if client != nil {
			r.client = client
		}
	}
}

// WithAuthenticator sets how requests are authenticated. Without it
// requests are sent as built.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(r *Requestor) { r.auth = a }
}

// WithLimiter throttles every attempt, including retries.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Requestor) { r.limiter = l }
}

// WithObservability traces, meters and logs each round trip.
func WithObservability(p observability.Provider) Option {
	return func(r *Requestor) { r.obs = p }
}

// WithMiddleware appends middlewares; the first one is outermost.
func WithMiddleware(mws ...MiddlewareConfig) Option {
	return func(r *Requestor) { r.middlewares = append(r.middlewares, mws...) }
}

// WithCredentialHint lets RequestError name the IAM key that was likely wrong.
func WithCredentialHint(accessKey, secretKey string) Option {
	return func(r *Requestor) {
		r.accessKey = accessKey
		r.secretKey = secretKey
	}
}

// New builds a Requestor. It fails if a middleware has no Send function.
func New(opts ...Option) (*Requestor, error) {
	r := &Requestor{client: &http.Client{}}
	for _, opt := range opts {
		opt(r)
	}
	for i, mw := range r.middlewares {
		if mw.Send == nil {
			return nil, fmt.Errorf("requestor: middleware at index %d has a nil Send function", i)
		}
	}
	r.send = buildSendChain(r.sendOnce, r.middlewares)
	r.stream = buildStreamChain(r.streamOnce, r.middlewares)
	return r, nil
}

// Observability returns the configured provider, or nil.
func (r *Requestor) Observability() observability.Provider {
	return r.obs
}

// Do sends req and returns the decoded response.
func (r *Requestor) Do(ctx context.Context, req *Request) (*Response, error) {
	return r.send(r.withObserver(ctx), req)
}

// Stream sends req and returns its chunks. Errors that happen before the
// first chunk are returned directly.
func (r *Requestor) Stream(ctx context.Context, req *Request) (*Stream, error) {
	return r.stream(r.withObserver(ctx), req)
}

func (r *Requestor) withObserver(ctx context.Context) context.Context {
	if r.obs != nil && observability.ObserverFromContext(ctx) == nil {
		return observability.ContextWithObserver(ctx, r.obs)
	}
	return ctx
}

// sendOnce is the innermost SendFunc. A rejected access token triggers one
// refresh and one more round trip.
func (r *Requestor) sendOnce(ctx context.Context, req *Request) (*Response, error) {
	resp, err := r.roundTrip(ctx, req)
	if r.refreshOnExpiry(ctx, err) {
		return r.roundTrip(ctx, req)
	}
	return resp, err
}

func (r *Requestor) refreshOnExpiry(ctx context.Context, err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsTokenExpired() {
		return false
	}
	refresher, ok := r.auth.(auth.Refresher)
	if !ok {
		return false
	}
	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventTokenExpired, observability.Int(observability.AttrQianfanErrorCode, apiErr.Code))
	}
	refreshed, rerr := refresher.Refresh(ctx)
	if rerr != nil {
		r.logWarn(ctx, "access token refresh failed", observability.Error(rerr))
		return false
	}
	return refreshed
}

func (r *Requestor) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	timer := utils.NewTimer()

	ctx, span := r.startSpan(ctx, observability.SpanQianfanRequest, req)
	defer span.End()

	httpReq, reqBody, err := r.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, r.fail(ctx, span, req, err)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, r.fail(ctx, span, req, fmt.Errorf("%w: %w", ErrTransport, err))
	}
	defer utils.CloseWithLog(httpResp.Body)

	raw, err := utils.ReadLimited(httpResp.Body)
	if err != nil {
		return nil, r.fail(ctx, span, req, fmt.Errorf("%w: %w", ErrTransport, err))
	}
	requestLatency := timer.Elapsed()

	span.AddEvent(observability.EventResponseReceived,
		observability.Int(observability.AttrHTTPStatusCode, httpResp.StatusCode),
		observability.Int(observability.AttrHTTPResponseBodySize, len(raw)),
	)

	if httpResp.StatusCode != http.StatusOK {
		return nil, r.fail(ctx, span, req, r.statusError(httpReq, httpResp, reqBody, raw))
	}

	resp, err := parseBody(httpReq, httpResp, raw, req)
	if err != nil {
		return nil, r.fail(ctx, span, req, err)
	}
	resp.Statistic = Statistic{
		RequestLatency: requestLatency,
		TotalLatency:   timer.Elapsed(),
		StartTimestamp: timer.StartedAt().UnixMilli(),
	}

	r.applyRateLimitHeader(ctx, span, httpResp.Header)
	r.succeed(ctx, span, req, resp)
	return resp, nil
}

// newHTTPRequest merges the query, encodes the body, sets the standard
// headers and authenticates. It also returns the encoded body for error
// reporting.
func (r *Requestor) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, []byte, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("requestor: invalid url %q: %w", req.URL, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			q[k] = append([]string(nil), vs...)
		}
		u.RawQuery = q.Encode()
	}

	var body []byte
	if req.JSONBody != nil {
		body, err = json.Marshal(req.JSONBody)
		if err != nil {
			return nil, nil, fmt.Errorf("requestor: encode body: %w", err)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("requestor: build request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get(headerRequestID) == "" {
		httpReq.Header.Set(headerRequestID, uuid.NewString())
	}

	if r.auth != nil {
		if err := r.auth.Authenticate(ctx, httpReq); err != nil {
			return nil, nil, err
		}
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventRequestPrepared,
			observability.String(observability.AttrHTTPMethod, method),
			observability.String(observability.AttrHTTPURL, redactURL(httpReq.URL)),
			observability.String(observability.AttrQianfanRequestID, httpReq.Header.Get(headerRequestID)),
			observability.Int(observability.AttrHTTPRequestBodySize, len(body)),
		)
	}
	return httpReq, body, nil
}

// statusError describes a non-200 reply the way support asks for it: the
// BCE error headers, both bodies, and a hint when the credential is at fault.
func (r *Requestor) statusError(httpReq *http.Request, httpResp *http.Response, reqBody, raw []byte) *RequestError {
	var b strings.Builder
	fmt.Fprintf(&b, "http request url %s failed with http status code %d\n", redactURL(httpReq.URL), httpResp.StatusCode)
	if code := httpResp.Header.Get(headerBceErrorCode); code != "" {
		fmt.Fprintf(&b, "error code from baidu: %s\n", code)
	}
	errMsg := httpResp.Header.Get(headerBceErrorMsg)
	if errMsg != "" {
		fmt.Fprintf(&b, "error message from baidu: %s\n", errMsg)
	}
	fmt.Fprintf(&b, "request body: %q\n", string(reqBody))
	fmt.Fprintf(&b, "response headers: %v\n", httpResp.Header)
	fmt.Fprintf(&b, "response body: %q", string(raw))

	reason := possibleReason(errMsg, r.accessKey, r.secretKey)
	if reason != "" {
		fmt.Fprintf(&b, "\n可能的原因：%s", reason)
	}
	return &RequestError{
		StatusCode:     httpResp.StatusCode,
		URL:            redactURL(httpReq.URL),
		Message:        b.String(),
		PossibleReason: reason,
	}
}

func possibleReason(bceMessage, accessKey, secretKey string) string {
	switch bceMessage {
	case msgCredentialNotFound:
		if accessKey == "" {
			return "Access Key 未设置"
		}
		return fmt.Sprintf("Access Key(`%s`) 错误", utils.MaskSecret(accessKey))
	case msgSignatureMismatch:
		if secretKey == "" {
			return "Secret Key 未设置"
		}
		return fmt.Sprintf("Secret Key(`%s`) 错误", utils.MaskSecret(secretKey))
	default:
		return ""
	}
}

// parseBody decodes a JSON reply and turns a non-zero error_code into an
// *APIError.
func parseBody(httpReq *http.Request, httpResp *http.Response, raw []byte, req *Request) (*Response, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &RequestError{
			StatusCode: httpResp.StatusCode,
			URL:        redactURL(httpReq.URL),
			Message:    fmt.Sprintf("got invalid json response from server, body: %q", utils.TruncateString(string(raw), 0)),
		}
	}
	if err := checkError(body, httpReq.Header.Get(headerRequestID)); err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Raw:        raw,
		Request:    req,
	}, nil
}

func checkError(body map[string]any, requestID string) error {
	raw, ok := body["error_code"]
	if !ok {
		return nil
	}
	code, ok := raw.(float64)
	if !ok || code == 0 {
		return nil
	}
	msg, _ := body["error_msg"].(string)
	return &APIError{Code: int(code), Message: msg, RequestID: requestID}
}

// applyRateLimitHeader lets the service lower or raise the RPM limit.
func (r *Requestor) applyRateLimitHeader(ctx context.Context, span observability.Span, h http.Header) {
	v := h.Get(headerRateLimitLimit)
	if v == "" || r.limiter == nil {
		return
	}
	rpm, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	if r.limiter.ResetRPM(rpm) {
		span.AddEvent(observability.EventRateLimitReset, observability.Float64("rpm", rpm))
		r.logWarn(ctx, "rpm limit reset by server", observability.Float64("rpm", rpm))
	}
}

// redactURL hides the access token so URLs can be logged.
func redactURL(u *url.URL) string {
	q := u.Query()
	if q.Get("access_token") == "" {
		return u.String()
	}
	c := *u
	q.Set("access_token", "***")
	c.RawQuery = q.Encode()
	return c.String()
}

func (r *Requestor) logWarn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if r.obs != nil {
		r.obs.Warn(ctx, msg, attrs...)
	}
}

// requestAttrs labels spans and metrics.
func requestAttrs(req *Request) []observability.Attribute {
	attrs := []observability.Attribute{observability.String(observability.AttrQianfanResource, req.Resource)}
	if req.Model != "" {
		attrs = append(attrs, observability.String(observability.AttrQianfanModel, req.Model))
	}
	if req.Endpoint != "" {
		attrs = append(attrs, observability.String(observability.AttrQianfanEndpoint, req.Endpoint))
	}
	return attrs
}

func (r *Requestor) startSpan(ctx context.Context, name string, req *Request) (context.Context, observability.Span) {
	if r.obs == nil {
		return ctx, nopSpan{}
	}
	ctx, span := r.obs.StartSpan(ctx, name, requestAttrs(req)...)
	if observability.SpanFromContext(ctx) != span {
		ctx = observability.ContextWithSpan(ctx, span)
	}
	return ctx, span
}

func (r *Requestor) fail(ctx context.Context, span observability.Span, req *Request, err error) error {
	span.RecordError(err)
	span.SetStatus(observability.StatusError, err.Error())
	if r.obs == nil {
		return err
	}
	attrs := requestAttrs(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, observability.Int(observability.AttrQianfanErrorCode, apiErr.Code))
	}
	r.obs.Counter(observability.MetricRequestErrors).Add(ctx, 1, attrs...)
	return err
}

func (r *Requestor) succeed(ctx context.Context, span observability.Span, req *Request, resp *Response) {
	span.SetStatus(observability.StatusOK, "")
	if r.obs == nil {
		return
	}
	attrs := requestAttrs(req)
	r.obs.Counter(observability.MetricRequestCount).Add(ctx, 1, attrs...)
	r.obs.Histogram(observability.MetricRequestDuration).Record(ctx, resp.Statistic.TotalLatency.Seconds(), attrs...)

	usage, ok := resp.Body["usage"].(map[string]any)
	if !ok {
		return
	}
	for key, metric := range map[string]string{
		"prompt_tokens":     observability.MetricTokensPrompt,
		"completion_tokens": observability.MetricTokensCompletion,
		"total_tokens":      observability.MetricTokensTotal,
	} {
		if n, ok := usage[key].(float64); ok && n > 0 {
			r.obs.Counter(metric).Add(ctx, int64(n), attrs...)
		}
	}
	span.SetAttributes(observability.Int(observability.AttrTokensTotal, intValue(usage["total_tokens"])))
}

func intValue(v any) int {
	f, _ := v.(float64)
	return int(f)
}

type nopSpan struct{}

func (nopSpan) End() {}
func (nopSpan) SetAttributes(...observability.Attribute) {}
func (nopSpan) SetStatus(observability.StatusCode, string) {}
func (nopSpan) RecordError(error) {}
func (nopSpan) AddEvent(string, ...observability.Attribute) {}
