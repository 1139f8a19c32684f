package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ieltsprep/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newValidationRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestValidationMiddleware(observability.NewLogger(nil)))
	router.POST("/v1/generate", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/v1/other", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRequestValidation_ValidBody(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{
		"module": "reading",
		"questionType": "TRUE_FALSE_NOT_GIVEN",
		"difficulty": "medium",
		"topicPreference": "urban trees",
		"questionCount": 5
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestValidation_UnknownModule(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{"module": "grammar", "difficulty": "medium"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestRequestValidation_MissingDifficulty(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{"module": "reading"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestValidation_RejectsUnknownFields(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{"module": "reading", "difficulty": "easy", "bogus": 1}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestValidation_MalformedJSON(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{"module": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")
}

func TestRequestValidation_RouteWithoutSchema(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/other", `{"anything": "goes"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestValidation_ListeningConfig(t *testing.T) {
	router := newValidationRouter(t)

	w := postJSON(router, "/v1/generate", `{
		"module": "listening",
		"questionType": "FORM_COMPLETION",
		"difficulty": "hard",
		"listeningConfig": {
			"speakers": 2,
			"spellingFocus": true,
			"speaker1": {"gender": "female", "accent": "british"},
			"speaker2": {"gender": "male", "accent": "australian"}
		}
	}`)

	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(router, "/v1/generate", `{
		"module": "listening",
		"difficulty": "hard",
		"listeningConfig": {"speakers": 3}
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
