// Package auth attaches Qianfan credentials to outgoing requests.
//
// Three schemes are supported. An IAM access key / secret key pair signs
// every request with a bce-auth-v1 Authorization header. A static access
// token is sent as-is. An OAuth AK/SK pair is exchanged for an access token
// that is cached and refreshed on demand.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/leofalp/qianfan/core/config"
)

var (
	// ErrNoCredential is returned by New when no usable credential is configured.
	ErrNoCredential = errors.New("qianfan: no credential configured, set QIANFAN_ACCESS_KEY/QIANFAN_SECRET_KEY or QIANFAN_AK/QIANFAN_SK")

	// ErrAuthFailed wraps failures of the OAuth token endpoint.
	ErrAuthFailed = errors.New("qianfan: authentication failed")
)

// Authenticator adds credentials to a fully built request. It runs after
// the URL, query and headers are final.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request) error
	// Method names the scheme for logs and span attributes.
	Method() string
}

// Refresher is implemented by token based authenticators that can fetch a
// new token after the service reports the current one as invalid. Refresh
// returns false when it kept the current token, in which case resending the
// request cannot help.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// New picks the scheme from cfg: IAM keys first, then a static access
// token, then OAuth AK/SK.
func New(cfg *config.Config, client *http.Client) (Authenticator, error) {
	switch {
	case cfg.HasIAM():
		return NewIAMSigner(cfg.AccessKey, cfg.SecretKey, cfg.IAMSignExpiration), nil
	case cfg.AccessToken != "":
		return StaticToken(cfg.AccessToken), nil
	case cfg.HasOAuth():
		return NewOAuth(cfg.AK, cfg.SK,
			WithBaseURL(cfg.BaseURL),
			WithHTTPClient(client),
			WithRefreshMinInterval(cfg.TokenRefreshMinInterval),
		), nil
	default:
		return nil, ErrNoCredential
	}
}

// StaticToken sends a fixed access token as the access_token query parameter.
type StaticToken string

func (t StaticToken) Authenticate(_ context.Context, req *http.Request) error {
	setAccessToken(req, string(t))
	return nil
}

func (StaticToken) Method() string { return "access_token" }

func setAccessToken(req *http.Request, token string) {
	q := req.URL.Query()
	q.Set("access_token", token)
	req.URL.RawQuery = q.Encode()
}
