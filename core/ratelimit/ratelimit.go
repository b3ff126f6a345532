// Package ratelimit throttles outgoing API calls by requests per second and
// requests per minute.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a QPS and an RPM bucket. A nil *Limiter never blocks.
type Limiter struct {
	qps *rate.Limiter

	mu       sync.Mutex
	rpm      *rate.Limiter
	rpmValue float64
	reset    bool
}

// New returns a Limiter. Zero or negative values disable the corresponding
// limit; New returns nil when both are disabled.
func New(qps, rpm float64) *Limiter {
	if qps <= 0 && rpm <= 0 {
		return nil
	}
	l := &Limiter{}
	if qps > 0 {
		l.qps = rate.NewLimiter(rate.Limit(qps), burst(qps))
	}
	if rpm > 0 {
		l.rpm = newRPM(rpm)
		l.rpmValue = rpm
	}
	return l
}

func newRPM(rpm float64) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/rpm)), burst(rpm/60))
}

// burst allows short spikes of up to one second's worth of requests.
func burst(perSecond float64) int {
	if perSecond < 1 {
		return 1
	}
	return int(perSecond)
}

// Wait blocks until both limits admit a request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if l.qps != nil {
		if err := l.qps.Wait(ctx); err != nil {
			return err
		}
	}
	l.mu.Lock()
	rpm := l.rpm
	l.mu.Unlock()
	if rpm != nil {
		return rpm.Wait(ctx)
	}
	return nil
}

// ResetRPM replaces the RPM limit with the value advertised by the server.
// It applies at most once per Limiter, only when an RPM limit is configured
// and rpm differs from it, and reports whether it changed anything.
func (l *Limiter) ResetRPM(rpm float64) bool {
	if l == nil || rpm <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reset || l.rpm == nil || rpm == l.rpmValue {
		return false
	}
	l.rpm = newRPM(rpm)
	l.rpmValue = rpm
	l.reset = true
	return true
}

// RPM reports the current requests-per-minute limit, zero when unlimited.
func (l *Limiter) RPM() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rpmValue
}
