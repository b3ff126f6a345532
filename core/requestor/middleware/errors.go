package middleware

import "errors"

// ErrRetryExhausted is returned when every attempt failed with a retryable
// error. It wraps the last error, so errors.As still finds the *APIError.
var ErrRetryExhausted = errors.New("qianfan: all retry attempts exhausted")
