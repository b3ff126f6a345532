package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/internal/utils"
	"github.com/leofalp/qianfan/providers/observability"
)

const (
	tokenPath = "/oauth/2.0/token"

	// expirySkew makes a token count as expired shortly before the server
	// would reject it.
	expirySkew = time.Minute

	defaultStoreSize = 128

	// tokenRequestTimeout bounds a shared token request, which no single
	// caller's context controls.
	tokenRequestTimeout = 30 * time.Second
)

type token struct {
	value       string
	expiresAt   time.Time
	refreshedAt time.Time
}

// TokenStore caches access tokens by AK. Stores are safe for concurrent use.
type TokenStore = lru.Cache[string, token]

// defaultStore is shared by every OAuth created without WithTokenStore, so
// clients using the same AK reuse one token.
var defaultStore = sync.OnceValue(func() *TokenStore {
	store, _ := lru.New[string, token](defaultStoreSize)
	return store
})

// refreshGroup collapses concurrent token requests for the same host and AK,
// across every OAuth value in the process.
var refreshGroup singleflight.Group

// NewTokenStore returns an empty store holding up to size AKs.
func NewTokenStore(size int) (*TokenStore, error) {
	return lru.New[string, token](size)
}

// OAuth exchanges an AK/SK pair for an access token. Concurrent refreshes of
// the same AK share a single HTTP call.
type OAuth struct {
	ak, sk      string
	baseURL     string
	client      *http.Client
	minInterval time.Duration
	store       *TokenStore
	now         func() time.Time
}

// OAuthOption configures OAuth.
type OAuthOption func(*OAuth)

// WithBaseURL sets the host serving /oauth/2.0/token.
func WithBaseURL(baseURL string) OAuthOption {
	return func(o *OAuth) {
		if baseURL != "" {
			o.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(client *http.Client) OAuthOption {
	return func(o *OAuth) {
		if client != nil {
			o.client = client
		}
	}
}

// WithRefreshMinInterval suppresses forced refreshes for d after the last one.
func WithRefreshMinInterval(d time.Duration) OAuthOption {
	return func(o *OAuth) { o.minInterval = d }
}

// WithTokenStore replaces the process-wide token cache.
func WithTokenStore(store *TokenStore) OAuthOption {
	return func(o *OAuth) { o.store = store }
}

// NewOAuth returns an OAuth authenticator for ak and sk.
func NewOAuth(ak, sk string, opts ...OAuthOption) *OAuth {
	o := &OAuth{
		ak:          ak,
		sk:          sk,
		baseURL:     config.DefaultBaseURL,
		client:      http.DefaultClient,
		minInterval: config.DefaultTokenRefreshMinInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = defaultStore()
	}
	return o
}

func (o *OAuth) Method() string { return "oauth" }

// Authenticate sets the access_token query parameter, fetching a token
// first if none is cached or the cached one expired.
func (o *OAuth) Authenticate(ctx context.Context, req *http.Request) error {
	tok, err := o.Token(ctx)
	if err != nil {
		return err
	}
	setAccessToken(req, tok)
	return nil
}

// Token returns a valid access token.
func (o *OAuth) Token(ctx context.Context) (string, error) {
	if tok, ok := o.store.Get(o.ak); ok && o.now().Before(tok.expiresAt) {
		return tok.value, nil
	}
	tok, err := o.fetch(ctx)
	if err != nil {
		return "", err
	}
	return tok.value, nil
}

// Refresh fetches a new token unless the cached one was obtained less than
// the refresh min interval ago. It reports whether a new token was fetched.
func (o *OAuth) Refresh(ctx context.Context) (bool, error) {
	if tok, ok := o.store.Get(o.ak); ok && o.now().Sub(tok.refreshedAt) < o.minInterval {
		if obs := observability.ObserverFromContext(ctx); obs != nil {
			obs.Debug(ctx, "token refresh skipped, last refresh too recent",
				observability.Duration("since", o.now().Sub(tok.refreshedAt)))
		}
		return false, nil
	}
	if _, err := o.fetch(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// fetch joins or starts the token request for this host and AK. The request
// runs detached from ctx so that one caller giving up does not fail the
// others waiting on it. ctx still bounds how long this caller waits.
func (o *OAuth) fetch(ctx context.Context) (token, error) {
	ch := refreshGroup.DoChan(o.baseURL+"|"+o.ak, func() (any, error) {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenRequestTimeout)
		defer cancel()
		tok, err := o.request(reqCtx)
		if err != nil {
			return nil, err
		}
		o.store.Add(o.ak, tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return token{}, fmt.Errorf("%w: %w", ErrAuthFailed, context.Cause(ctx))
	case res := <-ch:
		if res.Err != nil {
			return token{}, res.Err
		}
		tok := res.Val.(token)
		o.store.Add(o.ak, tok)
		return tok, nil
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (o *OAuth) request(ctx context.Context) (token, error) {
	if obs := observability.ObserverFromContext(ctx); obs != nil {
		var span observability.Span
		ctx, span = obs.StartSpan(ctx, observability.SpanTokenRefresh,
			observability.String(observability.AttrAuthMethod, o.Method()))
		defer span.End()
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", o.ak)
	q.Set("client_secret", o.sk)
	endpoint := o.baseURL + tokenPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return token{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return token{}, o.fail(ctx, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}
	defer utils.CloseWithLog(resp.Body)

	body, err := utils.ReadLimited(resp.Body)
	if err != nil {
		return token{}, o.fail(ctx, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return token{}, o.fail(ctx, fmt.Errorf("%w: status %d, invalid body %q", ErrAuthFailed, resp.StatusCode, utils.TruncateString(string(body), 200)))
	}
	if tr.Error != "" || tr.AccessToken == "" {
		return token{}, o.fail(ctx, fmt.Errorf("%w: ak %s: %s %s", ErrAuthFailed, utils.MaskSecret(o.ak), tr.Error, tr.ErrorDescription))
	}

	now := o.now()
	expiresAt := now.Add(time.Duration(tr.ExpiresIn)*time.Second - expirySkew)
	if tr.ExpiresIn <= 0 {
		expiresAt = now.Add(24 * time.Hour)
	}
	return token{value: tr.AccessToken, expiresAt: expiresAt, refreshedAt: now}, nil
}

func (o *OAuth) fail(ctx context.Context, err error) error {
	if span := observability.SpanFromContext(ctx); span != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, "token request failed")
	}
	return err
}
