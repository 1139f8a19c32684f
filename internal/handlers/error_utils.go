// Package handlers contains the HTTP API for the exam generation backend.
package handlers

import (
	"ieltsprep/internal/middleware"
	"ieltsprep/internal/models"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// respondError writes the failure body for a pipeline error, mapping the
// AppError code to an HTTP status and attaching a user-facing suggestion
// where one helps.
func respondError(c *gin.Context, err error) {
	code := contextutils.GetErrorCode(err)
	status := middleware.MapErrorCodeToHTTPStatus(code)

	resp := models.ErrorResponse{
		Error:      errorMessage(err),
		ErrorType:  string(code),
		Suggestion: suggestionFor(code),
	}

	_ = c.Error(err)
	c.JSON(status, resp)
}

func errorMessage(err error) string {
	if appErr, ok := err.(*contextutils.AppError); ok {
		return appErr.Message
	}
	return "Internal server error"
}

// suggestionFor gives the user something actionable for the failure modes
// they can actually do something about.
func suggestionFor(code contextutils.ErrorCode) string {
	switch code {
	case contextutils.ErrorCodeQuotaExceeded:
		return "Your Gemini API quota is exhausted for today. Wait for the daily reset or upgrade your plan."
	case contextutils.ErrorCodePermissionDenied:
		return "Your Gemini API key was rejected. Check it in settings and save it again."
	case contextutils.ErrorCodeSafetyFiltered:
		return "The model declined this topic. Try a different topic preference."
	case contextutils.ErrorCodeModelsExhausted, contextutils.ErrorCodeTransientModelError:
		return "The model service is having trouble right now. Try again in a minute."
	default:
		return ""
	}
}
