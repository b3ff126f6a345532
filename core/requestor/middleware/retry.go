package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/samber/lo"

	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/providers/observability"
)

// RetryConfig tunes the retry middleware.
type RetryConfig struct {
	// Attempts is the total number of calls, the first one included.
	// Request.RetryCount overrides it per call. Default: 1 (no retry).
	Attempts int

	// InitialBackoff is the base wait before the first retry; it doubles on
	// each following one. Request.BackoffFactor (seconds) overrides it.
	InitialBackoff time.Duration

	// Jitter is the upper bound of a uniform random delay added to every wait.
	Jitter time.Duration

	// MaxBackoff caps a single wait, jitter included. Default: 120s.
	MaxBackoff time.Duration

	// RetryableCodes lists the API error codes worth retrying. Nil means
	// config.DefaultRetryErrCodes.
	RetryableCodes []int

	// RetryableFunc replaces the default decision, which retries transport
	// errors and *APIError values whose code is in RetryableCodes.
	RetryableFunc func(error) bool
}

// RetryConfigFromConfig maps the QIANFAN_LLM_API_RETRY_* settings.
func RetryConfigFromConfig(cfg *config.Config) RetryConfig {
	return RetryConfig{
		Attempts:       cfg.RetryCount,
		InitialBackoff: seconds(cfg.RetryBackoffFactor),
		Jitter:         seconds(cfg.RetryJitter),
		MaxBackoff:     cfg.RetryMaxWaitInterval,
		RetryableCodes: cfg.RetryErrCodes,
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = config.DefaultRetryCount
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = config.DefaultRetryMaxWaitInterval
	}
	if cfg.RetryableCodes == nil {
		cfg.RetryableCodes = config.DefaultRetryErrCodes
	}
	if cfg.RetryableFunc == nil {
		codes := cfg.RetryableCodes
		cfg.RetryableFunc = func(err error) bool {
			if errors.Is(err, requestor.ErrTransport) {
				return true
			}
			var apiErr *requestor.APIError
			return errors.As(err, &apiErr) && lo.Contains(codes, apiErr.Code)
		}
	}
}

// computeBackoff returns min(initial·2^attempt + U(0, jitter), max) for the
// 0-indexed retry attempt.
func computeBackoff(initial, jitter, maxWait time.Duration, attempt int) time.Duration {
	wait := float64(initial) * math.Pow(2, float64(attempt))
	if jitter > 0 {
		wait += float64(jitter) * rand.Float64() //nolint:gosec // jitter does not need a CSPRNG
	}
	if wait > float64(maxWait) {
		wait = float64(maxWait)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// NewRetryMiddleware retries Do calls. Streams are not retried: once a chunk
// was delivered the call cannot be replayed transparently.
func NewRetryMiddleware(cfg RetryConfig) requestor.MiddlewareConfig {
	applyRetryDefaults(&cfg)

	send := func(next requestor.SendFunc) requestor.SendFunc {
		return func(ctx context.Context, req *requestor.Request) (*requestor.Response, error) {
			attempts := cfg.Attempts
			if req.RetryCount > 0 {
				attempts = req.RetryCount
			}
			initial := cfg.InitialBackoff
			if req.BackoffFactor != nil {
				initial = seconds(*req.BackoffFactor)
			}

			var lastErr error
			for attempt := range attempts {
				if attempt > 0 {
					backoff := computeBackoff(initial, cfg.Jitter, cfg.MaxBackoff, attempt-1)
					notifyRetry(ctx, req, attempt, backoff, lastErr)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(backoff):
					}
				}

				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if !cfg.RetryableFunc(err) {
					return nil, err
				}
			}

			if attempts == 1 {
				return nil, lastErr
			}
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
		}
	}

	return requestor.MiddlewareConfig{Send: send}
}

func notifyRetry(ctx context.Context, req *requestor.Request, attempt int, backoff time.Duration, cause error) {
	obs := observability.ObserverFromContext(ctx)
	if obs == nil {
		return
	}
	attrs := []observability.Attribute{
		observability.String(observability.AttrQianfanResource, req.Resource),
		observability.String(observability.AttrQianfanModel, req.Model),
		observability.Int(observability.AttrRetryAttempt, attempt),
		observability.Duration(observability.AttrRetryBackoff, backoff),
		observability.Error(cause),
	}
	obs.Warn(ctx, "retrying request", attrs...)
	obs.Counter(observability.MetricRetryCount).Add(ctx, 1, attrs[:2]...)
}
