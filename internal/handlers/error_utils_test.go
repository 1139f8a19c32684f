package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ieltsprep/internal/models"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondVia(t *testing.T, err error) (*httptest.ResponseRecorder, models.ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/fail", func(c *gin.Context) {
		respondError(c, err)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestRespondError_QuotaExceeded(t *testing.T) {
	err := contextutils.WrapError(contextutils.ErrQuotaExceeded, "daily token quota exhausted")
	w, resp := respondVia(t, err)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.ErrorType)
	assert.Contains(t, resp.Suggestion, "daily reset")
}

func TestRespondError_NotFound(t *testing.T) {
	err := contextutils.WrapError(contextutils.ErrRecordNotFound, "test not found")
	w, resp := respondVia(t, err)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECORD_NOT_FOUND", resp.ErrorType)
	assert.Equal(t, "test not found", resp.Error)
	assert.Empty(t, resp.Suggestion)
}

func TestRespondError_UpstreamModelFailure(t *testing.T) {
	err := contextutils.WrapError(contextutils.ErrTransientModelError, "model call failed")
	w, resp := respondVia(t, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "TRANSIENT_MODEL_ERROR", resp.ErrorType)
	assert.Contains(t, resp.Suggestion, "Try again")
}

func TestRespondError_RejectedProviderKeyIsInternal(t *testing.T) {
	err := contextutils.WrapError(contextutils.ErrPermissionDenied, "model rejected the API key")
	w, resp := respondVia(t, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "PERMISSION_DENIED", resp.ErrorType)
	assert.Contains(t, resp.Suggestion, "Check it in settings")
}

func TestRespondError_PlainErrorIsInternal(t *testing.T) {
	w, resp := respondVia(t, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", resp.Error)
}
