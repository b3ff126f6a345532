package requestor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/qianfan/core/ratelimit"
	"github.com/leofalp/qianfan/providers/observability"
	"github.com/leofalp/qianfan/providers/observability/slogobs"
)

// refreshingAuth appends a token query parameter and bumps it on Refresh.
type refreshingAuth struct {
	generation atomic.Int32
	refreshes  atomic.Int32
}

func (a *refreshingAuth) Authenticate(_ context.Context, req *http.Request) error {
	q := req.URL.Query()
	q.Set("access_token", fmt.Sprintf("token-%d", a.generation.Load()))
	req.URL.RawQuery = q.Encode()
	return nil
}

func (a *refreshingAuth) Method() string { return "test" }

func (a *refreshingAuth) Refresh(context.Context) (bool, error) {
	a.refreshes.Add(1)
	a.generation.Add(1)
	return true, nil
}

func newRequest(serverURL string) *Request {
	return &Request{
		URL:      serverURL + "/chat/completions",
		Query:    url.Values{"foo": {"bar"}},
		JSONBody: map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}},
		Resource: "chat",
		Model:    "ERNIE-Bot",
		Endpoint: "completions",
	}
}

func TestDo_Success(t *testing.T) {
	var gotHeader http.Header
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"as-1","result":"hello","usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}))
	defer srv.Close()

	r, err := New()
	require.NoError(t, err)

	resp, err := r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", resp.Body["result"])
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.NotEmpty(t, gotHeader.Get("X-Request-Id"))
	assert.Equal(t, "bar", gotQuery.Get("foo"))
	assert.Positive(t, resp.Statistic.StartTimestamp)
	assert.GreaterOrEqual(t, resp.Statistic.TotalLatency, resp.Statistic.RequestLatency)

	var decoded struct {
		Result string `json:"result"`
	}
	require.NoError(t, resp.Decode(&decoded))
	assert.Equal(t, "hello", decoded.Result)
}

func TestDo_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error_code":336003,"error_msg":"the max length of current question is 2000"}`)
	}))
	defer srv.Close()

	r, err := New()
	require.NoError(t, err)

	_, err = r.Do(context.Background(), newRequest(srv.URL))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeInvalidParam, apiErr.Code)
	assert.Contains(t, apiErr.Message, "max length")
	assert.NotEmpty(t, apiErr.RequestID)
	assert.False(t, apiErr.IsTokenExpired())
	assert.True(t, apiErr.IsRetryable([]int{CodeInvalidParam}))
}

func TestDo_ZeroErrorCodeIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error_code":0,"result":"ok"}`)
	}))
	defer srv.Close()

	r, _ := New()
	resp, err := r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Body["result"])
}

func TestDo_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>gateway</html>`)
	}))
	defer srv.Close()

	r, _ := New()
	_, err := r.Do(context.Background(), newRequest(srv.URL))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Contains(t, reqErr.Message, "invalid json")
	assert.Contains(t, reqErr.Message, "gateway")
}

func TestDo_StatusError(t *testing.T) {
	tests := []struct {
		name       string
		bceMessage string
		accessKey  string
		secretKey  string
		wantReason string
	}{
		{"unknown ak", msgCredentialNotFound, "ak-1234567890", "", "Access Key(`"},
		{"missing ak", msgCredentialNotFound, "", "", "Access Key 未设置"},
		{"bad sk", msgSignatureMismatch, "ak", "sk-1234567890", "Secret Key(`"},
		{"missing sk", msgSignatureMismatch, "ak", "", "Secret Key 未设置"},
		{"other", "InternalError", "ak", "sk", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(headerBceErrorCode, "401")
				w.Header().Set(headerBceErrorMsg, tt.bceMessage)
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"message":"denied"}`)
			}))
			defer srv.Close()

			r, err := New(WithCredentialHint(tt.accessKey, tt.secretKey))
			require.NoError(t, err)

			_, err = r.Do(context.Background(), newRequest(srv.URL))
			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)

			assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
			assert.Contains(t, reqErr.Message, "failed with http status code 401")
			assert.Contains(t, reqErr.Message, "error message from baidu: "+tt.bceMessage)
			assert.Contains(t, reqErr.Message, "denied")
			if tt.wantReason == "" {
				assert.Empty(t, reqErr.PossibleReason)
				assert.NotContains(t, reqErr.Message, "可能的原因")
				return
			}
			assert.Contains(t, reqErr.PossibleReason, tt.wantReason)
			assert.Contains(t, reqErr.Message, "可能的原因：")
			if tt.accessKey != "" {
				assert.NotContains(t, reqErr.Message, tt.accessKey+"`")
			}
			if tt.secretKey != "" {
				assert.NotContains(t, reqErr.Message, tt.secretKey)
			}
		})
	}
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	r, _ := New()
	_, err := r.Do(context.Background(), newRequest(srv.URL))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDo_TokenRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("access_token") == "token-0" {
			fmt.Fprint(w, `{"error_code":111,"error_msg":"Access token expired"}`)
			return
		}
		fmt.Fprint(w, `{"result":"fresh"}`)
	}))
	defer srv.Close()

	a := &refreshingAuth{}
	r, err := New(WithAuthenticator(a))
	require.NoError(t, err)

	resp, err := r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Body["result"])
	assert.EqualValues(t, 1, a.refreshes.Load())
	assert.EqualValues(t, 2, calls.Load())
}

func TestDo_TokenRefreshOnlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error_code":110,"error_msg":"Access token invalid or no longer valid"}`)
	}))
	defer srv.Close()

	a := &refreshingAuth{}
	r, _ := New(WithAuthenticator(a))

	_, err := r.Do(context.Background(), newRequest(srv.URL))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsTokenExpired())
	assert.EqualValues(t, 1, a.refreshes.Load())
	assert.EqualValues(t, 2, calls.Load())
}

func TestDo_TokenRefreshFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error_code":111,"error_msg":"expired"}`)
	}))
	defer srv.Close()

	r, _ := New(WithAuthenticator(deniedAuth{}))

	_, err := r.Do(context.Background(), newRequest(srv.URL))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, 1, calls.Load(), "no second attempt when refresh fails")
}

type deniedAuth struct{}

func (deniedAuth) Authenticate(context.Context, *http.Request) error { return nil }
func (deniedAuth) Method() string { return "denied" }
func (deniedAuth) Refresh(context.Context) (bool, error) {
	return false, errors.New("refresh denied")
}

func TestDo_TokenRefreshSkipped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error_code":111,"error_msg":"expired"}`)
	}))
	defer srv.Close()

	a := &throttledAuth{}
	r, _ := New(WithAuthenticator(a))

	_, err := r.Do(context.Background(), newRequest(srv.URL))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, 1, a.refreshes.Load())
	assert.EqualValues(t, 1, calls.Load(), "the rejected token is not sent again")
}

// throttledAuth declines every refresh, like OAuth inside its min interval.
type throttledAuth struct {
	refreshes atomic.Int32
}

func (*throttledAuth) Authenticate(context.Context, *http.Request) error { return nil }
func (*throttledAuth) Method() string { return "throttled" }
func (a *throttledAuth) Refresh(context.Context) (bool, error) {
	a.refreshes.Add(1)
	return false, nil
}

func TestDo_AuthenticateError(t *testing.T) {
	r, _ := New(WithAuthenticator(failingAuth{}))
	_, err := r.Do(context.Background(), newRequest("http://127.0.0.1:1"))
	assert.ErrorContains(t, err, "no credential")
}

type failingAuth struct{}

func (failingAuth) Authenticate(context.Context, *http.Request) error {
	return errors.New("no credential")
}
func (failingAuth) Method() string { return "failing" }

func TestDo_RateLimitHeaderResetsRPM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerRateLimitLimit, "300")
		fmt.Fprint(w, `{"result":"ok"}`)
	}))
	defer srv.Close()

	limiter := ratelimit.New(0, 6000)
	r, _ := New(WithLimiter(limiter))

	_, err := r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)
	assert.InDelta(t, 300, limiter.RPM(), 0.001)
}

func TestDo_Observability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"result":"ok","usage":{"prompt_tokens":4,"completion_tokens":6,"total_tokens":10}}`)
	}))
	defer srv.Close()

	var buf strings.Builder
	obs := slogobs.New(slogobs.WithOutput(&buf), slogobs.WithFormat(slogobs.FormatJSON))
	r, _ := New(WithObservability(obs))
	assert.Same(t, obs, r.Observability())

	_, err := r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)

	assert.EqualValues(t, 1, obs.CounterValue(observability.MetricRequestCount))
	assert.EqualValues(t, 10, obs.CounterValue(observability.MetricTokensTotal))
	assert.EqualValues(t, 4, obs.CounterValue(observability.MetricTokensPrompt))
	assert.EqualValues(t, 0, obs.CounterValue(observability.MetricRequestErrors))
}

func TestMiddlewareOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"result":"ok"}`)
	}))
	defer srv.Close()

	var order []string
	record := func(name string) MiddlewareConfig {
		return MiddlewareConfig{Send: func(next SendFunc) SendFunc {
			return func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name+">")
				resp, err := next(ctx, req)
				order = append(order, "<"+name)
				return resp, err
			}
		}}
	}

	r, err := New(WithMiddleware(record("outer"), record("inner")))
	require.NoError(t, err)
	_, err = r.Do(context.Background(), newRequest(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, order)
}

func TestNew_NilSend(t *testing.T) {
	_, err := New(WithMiddleware(MiddlewareConfig{}))
	assert.ErrorContains(t, err, "index 0")
}

func TestRedactURL(t *testing.T) {
	u, _ := url.Parse("https://aip.baidubce.com/rpc/2.0/x?access_token=secret&foo=bar")
	got := redactURL(u)
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "access_token=%2A%2A%2A")
	assert.Contains(t, got, "foo=bar")

	plain, _ := url.Parse("https://aip.baidubce.com/rpc/2.0/x?foo=bar")
	assert.Equal(t, plain.String(), redactURL(plain))
}

func TestRequestClone(t *testing.T) {
	orig := &Request{
		Headers:  http.Header{"A": {"1"}},
		Query:    url.Values{"q": {"1"}},
		JSONBody: map[string]any{"k": "v"},
	}
	c := orig.Clone()
	c.Headers.Set("A", "2")
	c.Query.Set("q", "2")
	c.JSONBody["k"] = "changed"

	assert.Equal(t, "1", orig.Headers.Get("A"))
	assert.Equal(t, "1", orig.Query.Get("q"))
	assert.Equal(t, "v", orig.JSONBody["k"])
}
