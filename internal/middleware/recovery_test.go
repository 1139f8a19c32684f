package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRecoveryMiddleware_Panic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(observability.NewLogger(nil)))
	router.GET("/boom", func(_ *gin.Context) {
		panic("something broke")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := []struct {
		code contextutils.ErrorCode
		want int
	}{
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeValidationFailed, http.StatusBadRequest},
		{contextutils.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{contextutils.ErrorCodeInvalidCredentials, http.StatusUnauthorized},
		{contextutils.ErrorCodeForbidden, http.StatusForbidden},
		// A provider-rejected API key is a pipeline failure, not an authz
		// decision of ours.
		{contextutils.ErrorCodePermissionDenied, http.StatusInternalServerError},
		{contextutils.ErrorCodeRecordNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeQuotaExceeded, http.StatusTooManyRequests},
		{contextutils.ErrorCodeModelsExhausted, http.StatusInternalServerError},
		{contextutils.ErrorCodeTTSFailed, http.StatusInternalServerError},
		{contextutils.ErrorCodeSafetyFiltered, http.StatusInternalServerError},
		{contextutils.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeInternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapErrorCodeToHTTPStatus(tc.code), string(tc.code))
	}
}
