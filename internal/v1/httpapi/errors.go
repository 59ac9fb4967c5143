// Package httpapi is the Gin-based REST and WebSocket-upgrade surface for
// the watch-party coordinator (spec §6).
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/logging"
)

// APIError is the single error type every handler returns, satisfying
// error so it can be passed to gin.Context.Error and rendered uniformly
// (spec §7's error taxonomy, realized as a Go type per SPEC_FULL.md §7).
// The response body always carries {error, status} per spec §7 — Code is
// an internal taxonomy label and isn't rendered.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string { return e.Message }

func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

func Forbidden(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Code: "forbidden", Message: message}
}

func Unauthorized(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message}
}

func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

func Internal(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "internal_error", Message: message}
}

func ServiceUnavailable(message string) *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: message}
}

// Abort renders err (or a generic 500 for anything not already an APIError)
// and stops the handler chain.
func Abort(c *gin.Context, err error) {
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = Internal(err.Error())
	}
	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

// ErrorMiddleware centralizes rendering for handlers that set c.Error(...)
// instead of aborting directly: an APIError is rendered as is, anything else
// is logged and rendered as a generic 500. It does not recover panics.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		if c.Writer.Written() {
			return
		}
		apiErr, ok := err.(*APIError)
		if !ok {
			logging.Error(c.Request.Context(), "unhandled handler error", zap.Error(err))
			apiErr = Internal("internal error")
		}
		c.JSON(apiErr.Status, apiErr)
	}
}
