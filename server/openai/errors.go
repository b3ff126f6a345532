package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/leofalp/qianfan/core/auth"
	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/resources"
)

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuthentication = "authentication_error"
	errTypeRateLimit      = "rate_limit_error"
	errTypeServer         = "server_error"
)

// errBadRequest marks a request the adapter itself cannot translate.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// errorStatus maps an SDK error onto an HTTP status, an OpenAI error type
// and an optional error code.
func errorStatus(err error) (status int, errType string, code any) {
	var apiErr *requestor.APIError
	var reqErr *requestor.RequestError

	switch {
	case errors.Is(err, resources.ErrUnknownModel):
		return http.StatusNotFound, errTypeInvalidRequest, "model_not_found"
	case errors.Is(err, errBadRequest),
		errors.Is(err, resources.ErrMissingRequiredKey),
		errors.Is(err, resources.ErrEndpointRequired):
		return http.StatusBadRequest, errTypeInvalidRequest, nil
	case errors.Is(err, auth.ErrNoCredential), errors.Is(err, auth.ErrAuthFailed):
		return http.StatusUnauthorized, errTypeAuthentication, nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errTypeServer, nil
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case requestor.CodeRequestLimitReached, requestor.CodeDailyLimitReached, requestor.CodeQPSLimitReached,
			requestor.CodeRPMLimitReached, requestor.CodeTPMLimitReached:
			return http.StatusTooManyRequests, errTypeRateLimit, apiErr.Code
		case requestor.CodeAccessTokenInvalid, requestor.CodeAccessTokenExpired,
			requestor.CodeNoPermission, requestor.CodePermissionError:
			return http.StatusUnauthorized, errTypeAuthentication, apiErr.Code
		case requestor.CodeInvalidArgument, requestor.CodeInvalidJSON, requestor.CodeInvalidParam:
			return http.StatusBadRequest, errTypeInvalidRequest, apiErr.Code
		}
		return http.StatusBadGateway, errTypeServer, apiErr.Code
	case errors.As(err, &reqErr):
		return http.StatusBadGateway, errTypeServer, reqErr.StatusCode
	}
	return http.StatusInternalServerError, errTypeServer, nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, errType, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "upstream call failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, goopenai.ErrorResponse{Error: &goopenai.APIError{
		Type:    errType,
		Code:    code,
		Message: err.Error(),
	}})
}
