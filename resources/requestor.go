package resources

import (
	"fmt"
	"net/http"

	"github.com/leofalp/qianfan/core/auth"
	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/core/ratelimit"
	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/core/requestor/middleware"
	"github.com/leofalp/qianfan/providers/observability/slogobs"
)

// NewRequestor assembles the requestor the resources use by default:
// credentials from cfg, QPS/RPM limits, and the retry → timeout middleware
// chain. When cfg.LogLevel is set a slog observer and the logging
// middleware are attached too. opts are applied last and may replace any
// of these.
func NewRequestor(cfg *config.Config, opts ...requestor.Option) (*requestor.Requestor, error) {
	client := &http.Client{}

	authenticator, err := auth.New(cfg, client)
	if err != nil {
		return nil, err
	}

	mws := []requestor.MiddlewareConfig{
		middleware.NewRetryMiddleware(middleware.RetryConfigFromConfig(cfg)),
		middleware.NewTimeoutMiddleware(cfg.RetryTimeout),
	}

	base := []requestor.Option{
		requestor.WithHTTPClient(client),
		requestor.WithAuthenticator(authenticator),
		requestor.WithLimiter(ratelimit.New(cfg.QPSLimit, cfg.RPMLimit)),
		requestor.WithCredentialHint(cfg.AccessKey, cfg.SecretKey),
	}

	if cfg.LogLevel != "" {
		level, ok := slogobs.ParseLevel(cfg.LogLevel)
		if !ok {
			return nil, fmt.Errorf("resources: invalid log level %q", cfg.LogLevel)
		}
		obs := slogobs.New(slogobs.WithLevel(level), slogobs.WithFormat(slogobs.ParseFormat(cfg.LogFormat)))

		logLevel := middleware.LogLevelStandard
		if level < 0 {
			logLevel = middleware.LogLevelVerbose
		}
		mws = append(mws, middleware.NewLoggingMiddleware(obs.Logger(), logLevel))
		base = append(base, requestor.WithObservability(obs))
	}
	base = append(base, requestor.WithMiddleware(mws...))

	return requestor.New(append(base, opts...)...)
}
