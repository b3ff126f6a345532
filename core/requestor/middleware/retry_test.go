package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/internal/utils"
)

// sendSequence returns errs[i] on the i-th call and a response once they run out.
type sendSequence struct {
	errs  []error
	calls int
}

func (s *sendSequence) next(_ context.Context, _ *requestor.Request) (*requestor.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &requestor.Response{StatusCode: 200, Body: map[string]any{"result": "ok"}}, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetryMiddleware_SuccessOnFirstTry(t *testing.T) {
	seq := &sendSequence{}
	chain := NewRetryMiddleware(fastRetry(3)).Send(seq.next)

	resp, err := chain(context.Background(), &requestor.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body["result"] != "ok" || seq.calls != 1 {
		t.Errorf("calls = %d, want 1", seq.calls)
	}
}

func TestRetryMiddleware_RetriesConfiguredCodes(t *testing.T) {
	seq := &sendSequence{errs: []error{
		&requestor.APIError{Code: requestor.CodeQPSLimitReached},
		fmt.Errorf("%w: connection reset", requestor.ErrTransport),
	}}
	chain := NewRetryMiddleware(fastRetry(3)).Send(seq.next)

	if _, err := chain(context.Background(), &requestor.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq.calls != 3 {
		t.Errorf("calls = %d, want 3", seq.calls)
	}
}

func TestRetryMiddleware_Exhausted(t *testing.T) {
	apiErr := &requestor.APIError{Code: requestor.CodeServerHighLoad, Message: "busy"}
	seq := &sendSequence{errs: []error{apiErr, apiErr, apiErr, apiErr}}
	chain := NewRetryMiddleware(fastRetry(3)).Send(seq.next)

	_, err := chain(context.Background(), &requestor.Request{})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	var got *requestor.APIError
	if !errors.As(err, &got) || got.Code != requestor.CodeServerHighLoad {
		t.Errorf("last APIError should be reachable, got %v", err)
	}
	if seq.calls != 3 {
		t.Errorf("calls = %d, want 3 attempts in total", seq.calls)
	}
}

func TestRetryMiddleware_SingleAttemptReturnsRawError(t *testing.T) {
	apiErr := &requestor.APIError{Code: requestor.CodeServiceUnavailable}
	seq := &sendSequence{errs: []error{apiErr}}
	chain := NewRetryMiddleware(RetryConfig{}).Send(seq.next)

	_, err := chain(context.Background(), &requestor.Request{})
	if err != apiErr {
		t.Errorf("with the default single attempt the error should pass through, got %v", err)
	}
}

func TestRetryMiddleware_NonRetryable(t *testing.T) {
	seq := &sendSequence{errs: []error{&requestor.APIError{Code: requestor.CodeInvalidParam}}}
	chain := NewRetryMiddleware(fastRetry(5)).Send(seq.next)

	_, err := chain(context.Background(), &requestor.Request{})
	var apiErr *requestor.APIError
	if !errors.As(err, &apiErr) || errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("unexpected error %v", err)
	}
	if seq.calls != 1 {
		t.Errorf("calls = %d, want 1", seq.calls)
	}
}

func TestRetryMiddleware_RequestOverride(t *testing.T) {
	apiErr := &requestor.APIError{Code: requestor.CodeRPMLimitReached}
	seq := &sendSequence{errs: []error{apiErr, apiErr, apiErr, apiErr, apiErr}}
	chain := NewRetryMiddleware(fastRetry(1)).Send(seq.next)

	req := &requestor.Request{RetryCount: 4, BackoffFactor: utils.Ptr(0.001)}
	_, err := chain(context.Background(), req)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if seq.calls != 4 {
		t.Errorf("calls = %d, want RetryCount=4", seq.calls)
	}
}

func TestRetryMiddleware_CustomCodes(t *testing.T) {
	cfg := fastRetry(2)
	cfg.RetryableCodes = []int{requestor.CodeInvalidParam}
	seq := &sendSequence{errs: []error{&requestor.APIError{Code: requestor.CodeInvalidParam}}}

	if _, err := NewRetryMiddleware(cfg).Send(seq.next)(context.Background(), &requestor.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq.calls != 2 {
		t.Errorf("calls = %d, want 2", seq.calls)
	}
}

func TestRetryMiddleware_ContextCancellation(t *testing.T) {
	apiErr := &requestor.APIError{Code: requestor.CodeQPSLimitReached}
	seq := &sendSequence{errs: []error{apiErr, apiErr, apiErr}}
	chain := NewRetryMiddleware(RetryConfig{Attempts: 3, InitialBackoff: time.Second, MaxBackoff: time.Second}).Send(seq.next)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := chain(ctx, &requestor.Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if seq.calls != 1 {
		t.Errorf("calls = %d, want 1 before cancellation", seq.calls)
	}
}

func TestRetryMiddleware_NoStream(t *testing.T) {
	if NewRetryMiddleware(RetryConfig{}).Stream != nil {
		t.Error("streams must not be retried")
	}
}

func TestComputeBackoff(t *testing.T) {
	tests := []struct {
		name     string
		initial  time.Duration
		jitter   time.Duration
		max      time.Duration
		attempt  int
		min, top time.Duration
	}{
		{"first retry", time.Second, 0, time.Minute, 0, time.Second, time.Second},
		{"doubles", time.Second, 0, time.Minute, 3, 8 * time.Second, 8 * time.Second},
		{"capped", time.Second, 0, 5 * time.Second, 10, 5 * time.Second, 5 * time.Second},
		{"jitter only", 0, time.Second, time.Minute, 2, 0, time.Second},
		{"jitter capped", 4 * time.Second, 2 * time.Second, 5 * time.Second, 0, 4 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 20 {
				got := computeBackoff(tt.initial, tt.jitter, tt.max, tt.attempt)
				if got < tt.min || got > tt.top {
					t.Fatalf("computeBackoff() = %v, want within [%v, %v]", got, tt.min, tt.top)
				}
			}
		})
	}
}

func TestRetryConfigFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RetryCount = 4
	cfg.RetryBackoffFactor = 0.5
	cfg.RetryJitter = 2

	rc := RetryConfigFromConfig(cfg)
	if rc.Attempts != 4 || rc.InitialBackoff != 500*time.Millisecond || rc.Jitter != 2*time.Second {
		t.Errorf("unexpected mapping: %+v", rc)
	}
	if rc.MaxBackoff != config.DefaultRetryMaxWaitInterval {
		t.Errorf("MaxBackoff = %v", rc.MaxBackoff)
	}
}
