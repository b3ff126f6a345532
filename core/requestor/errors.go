package requestor

import (
	"errors"
	"fmt"
	"slices"
)

// API error codes returned in the error_code field of a response body.
const (
	CodeServiceUnavailable    = 2
	CodeRequestLimitReached   = 4
	CodeNoPermission          = 6
	CodeGetServiceTokenFailed = 13
	CodeDailyLimitReached     = 17
	CodeQPSLimitReached       = 18
	CodeAccessTokenInvalid    = 110
	CodeAccessTokenExpired    = 111
	CodeInternalError         = 336000
	CodeInvalidArgument       = 336001
	CodeInvalidJSON           = 336002
	CodeInvalidParam          = 336003
	CodePermissionError       = 336004
	CodeAPINameNotExist       = 336005
	CodeServerHighLoad        = 336100
	CodeRPMLimitReached       = 336501
	CodeTPMLimitReached       = 336502
)

// ErrTransport wraps failures below HTTP: dial errors, resets, timeouts
// while reading the body. The retry middleware treats it as retryable.
var ErrTransport = errors.New("qianfan: transport error")

// APIError is a response whose body carried a non-zero error_code.
type APIError struct {
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("qianfan: api error %d: %s (request id %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("qianfan: api error %d: %s", e.Code, e.Message)
}

// IsTokenExpired reports whether the access token was rejected and a
// refresh may fix the call.
func (e *APIError) IsTokenExpired() bool {
	return e.Code == CodeAccessTokenInvalid || e.Code == CodeAccessTokenExpired
}

// IsRetryable reports whether Code is one of codes.
func (e *APIError) IsRetryable(codes []int) bool {
	return slices.Contains(codes, e.Code)
}

// RequestError is an HTTP level failure: a non-200 status or a body that is
// not JSON. Message holds the full diagnostic text.
type RequestError struct {
	StatusCode int
	URL        string
	Message    string
	// PossibleReason names a likely credential problem, if one was detected.
	PossibleReason string
}

func (e *RequestError) Error() string {
	return e.Message
}
