package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// RecoveryMiddleware converts panics into structured 500 responses.
func RecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "Panic recovered", fmt.Errorf("panic: %v", r), map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"stack":  string(debug.Stack()),
				})

				appErr := contextutils.NewAppError(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
				)
				HandleAppError(c, appErr)
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleAppError sends the HTTP response for any error, mapping AppError
// codes to status codes.
func HandleAppError(c *gin.Context, err error) {
	appErr, ok := err.(*contextutils.AppError)
	if !ok {
		appErr = contextutils.NewAppError(
			contextutils.ErrorCodeInternalError,
			contextutils.SeverityError,
			"Internal server error",
			err.Error(),
		)
	}
	c.JSON(MapErrorCodeToHTTPStatus(appErr.Code), appErr.ToJSON())
}

// MapErrorCodeToHTTPStatus maps AppError codes to HTTP status codes.
func MapErrorCodeToHTTPStatus(code contextutils.ErrorCode) int {
	switch code {
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeMissingRequired,
		contextutils.ErrorCodeValidationFailed:
		return http.StatusBadRequest

	case contextutils.ErrorCodeUnauthorized, contextutils.ErrorCodeInvalidCredentials:
		return http.StatusUnauthorized

	case contextutils.ErrorCodeForbidden:
		return http.StatusForbidden

	case contextutils.ErrorCodeRecordNotFound:
		return http.StatusNotFound

	case contextutils.ErrorCodeRecordExists:
		return http.StatusConflict

	case contextutils.ErrorCodeQuotaExceeded:
		return http.StatusTooManyRequests

	case contextutils.ErrorCodeTimeout:
		return http.StatusRequestTimeout

	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeDatabaseConnection:
		return http.StatusServiceUnavailable

	// Upstream model failures land in the default 500 bucket; the body's
	// errorType carries the distinction for the client.
	default:
		return http.StatusInternalServerError
	}
}
