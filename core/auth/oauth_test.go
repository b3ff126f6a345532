package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leofalp/qianfan/core/config"
)

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, delay time.Duration, body func(n int32) string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		if r.URL.Path != tokenPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credentials" || q.Get("client_id") == "" || q.Get("client_secret") == "" {
			t.Errorf("missing oauth query params: %s", r.URL.RawQuery)
		}
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body(n)))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func tokenBody(n int32) string {
	return `{"access_token":"tok-` + string(rune('0'+n)) + `","expires_in":2592000}`
}

func newTestOAuth(t *testing.T, ts *tokenServer, opts ...OAuthOption) *OAuth {
	t.Helper()
	store, err := NewTokenStore(8)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]OAuthOption{WithBaseURL(ts.URL), WithTokenStore(store)}, opts...)
	return NewOAuth(t.Name()+"-ak", "sk", opts...)
}

func TestOAuth_CachesToken(t *testing.T) {
	ts := newTokenServer(t, 0, tokenBody)
	o := newTestOAuth(t, ts)

	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "https://aip.baidubce.com/chat/x?foo=1", nil)
		if err := o.Authenticate(context.Background(), req); err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if got := req.URL.Query().Get("access_token"); got != "tok-1" {
			t.Errorf("access_token = %q, want tok-1", got)
		}
		if req.URL.Query().Get("foo") != "1" {
			t.Error("existing query parameters must be preserved")
		}
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestOAuth_SingleFlight(t *testing.T) {
	ts := newTokenServer(t, 50*time.Millisecond, tokenBody)
	o := newTestOAuth(t, ts)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Token(context.Background()); err != nil {
				t.Errorf("Token() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := ts.calls.Load(); n != 1 {
		t.Errorf("concurrent Token() made %d calls, want 1", n)
	}
}

func TestOAuth_SharedFetchOutlivesCaller(t *testing.T) {
	ts := newTokenServer(t, 200*time.Millisecond, tokenBody)
	o := newTestOAuth(t, ts)

	var shortErr error
	var wg sync.WaitGroup
	wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, shortErr = o.Token(ctx)
	})

	time.Sleep(10 * time.Millisecond)
	tok, err := o.Token(context.Background())
	wg.Wait()

	if err != nil {
		t.Fatalf("Token() with a live context error = %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}
	if !errors.Is(shortErr, context.DeadlineExceeded) {
		t.Errorf("short caller error = %v, want context.DeadlineExceeded", shortErr)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestOAuth_CancelledCallerStillCaches(t *testing.T) {
	ts := newTokenServer(t, 50*time.Millisecond, tokenBody)
	o := newTestOAuth(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := o.Token(ctx); err == nil {
		t.Fatal("expected the short caller to give up")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := o.store.Get(o.ak); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := o.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestOAuth_Expiry(t *testing.T) {
	ts := newTokenServer(t, 0, func(n int32) string {
		return `{"access_token":"tok-` + string(rune('0'+n)) + `","expires_in":3600}`
	})
	o := newTestOAuth(t, ts)
	now := time.Now()
	o.now = func() time.Time { return now }

	first, _ := o.Token(context.Background())
	now = now.Add(2 * time.Hour)
	second, err := o.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if first == second || ts.calls.Load() != 2 {
		t.Errorf("expired token should be replaced: first=%s second=%s calls=%d", first, second, ts.calls.Load())
	}
}

func TestOAuth_RefreshMinInterval(t *testing.T) {
	tests := []struct {
		name          string
		interval      time.Duration
		wantRefreshed bool
		wantCalls     int32
		wantToken     string
	}{
		{"throttled", time.Hour, false, 1, "tok-1"},
		{"allowed", 0, true, 2, "tok-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, 0, tokenBody)
			o := newTestOAuth(t, ts, WithRefreshMinInterval(tt.interval))

			if _, err := o.Token(context.Background()); err != nil {
				t.Fatal(err)
			}
			refreshed, err := o.Refresh(context.Background())
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if refreshed != tt.wantRefreshed {
				t.Errorf("Refresh() = %v, want %v", refreshed, tt.wantRefreshed)
			}
			got, _ := o.Token(context.Background())

			if ts.calls.Load() != tt.wantCalls || got != tt.wantToken {
				t.Errorf("calls=%d token=%s, want calls=%d token=%s", ts.calls.Load(), got, tt.wantCalls, tt.wantToken)
			}
		})
	}
}

func TestOAuth_ErrorResponse(t *testing.T) {
	ts := newTokenServer(t, 0, func(int32) string {
		return `{"error":"invalid_client","error_description":"unknown client id"}`
	})
	o := newTestOAuth(t, ts)

	_, err := o.Token(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if !strings.Contains(err.Error(), "invalid_client") || !strings.Contains(err.Error(), "unknown client id") {
		t.Errorf("error should carry the server reason: %v", err)
	}
}

func TestNew_SchemeSelection(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.Config
		method string
		err    error
	}{
		{"iam wins", config.Config{AccessKey: "a", SecretKey: "s", AK: "x", SK: "y", AccessToken: "t"}, "iam", nil},
		{"static token", config.Config{AccessToken: "t", AK: "x", SK: "y"}, "access_token", nil},
		{"oauth", config.Config{AK: "x", SK: "y"}, "oauth", nil},
		{"partial iam falls through", config.Config{AccessKey: "a", AK: "x", SK: "y"}, "oauth", nil},
		{"nothing", config.Config{}, "", ErrNoCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(&tt.cfg, nil)
			if !errors.Is(err, tt.err) {
				t.Fatalf("New() error = %v, want %v", err, tt.err)
			}
			if err == nil && a.Method() != tt.method {
				t.Errorf("Method() = %q, want %q", a.Method(), tt.method)
			}
		})
	}
}

func TestStaticToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com/x?a=1", nil)
	if err := StaticToken("abc").Authenticate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.URL.Query().Get("access_token") != "abc" || req.URL.Query().Get("a") != "1" {
		t.Errorf("unexpected query %q", req.URL.RawQuery)
	}
}
