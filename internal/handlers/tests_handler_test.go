package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ieltsprep/internal/middleware"
	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveStub struct {
	records   []models.TestRecord
	test      *models.GeneratedTest
	listErr   error
	gotID     string
	gotLimit  int
	gotOffset int
}

func (s *archiveStub) SaveTest(context.Context, int, *models.GeneratedTest) error { return nil }

func (s *archiveStub) ListTests(_ context.Context, _ int, limit, offset int) ([]models.TestRecord, error) {
	s.gotLimit = limit
	s.gotOffset = offset
	return s.records, s.listErr
}

func (s *archiveStub) GetTest(_ context.Context, _ int, testID string) (*models.GeneratedTest, error) {
	s.gotID = testID
	if s.test == nil {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "test not found")
	}
	return s.test, nil
}

func newTestsRouter(stub *archiveStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTestsHandler(stub, observability.NewLogger(nil))
	router := gin.New()
	authed := func(c *gin.Context) { c.Set(middleware.UserIDKey, 7) }
	router.GET("/v1/tests", authed, h.ListTests)
	router.GET("/v1/tests/:id", authed, h.GetTest)
	return router
}

func TestListTests(t *testing.T) {
	stub := &archiveStub{records: []models.TestRecord{
		{ID: "a1", UserID: 7, Module: models.ModuleReading, QuestionType: models.TrueFalseNotGiven, CreatedAt: time.Now()},
		{ID: "a2", UserID: 7, Module: models.ModuleListening, QuestionType: models.FormCompletion, CreatedAt: time.Now()},
	}}
	router := newTestsRouter(stub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tests", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"a1"`)
	assert.Contains(t, w.Body.String(), `"a2"`)
	assert.Contains(t, w.Body.String(), `"pagination"`)
	assert.Equal(t, defaultTestPageSize, stub.gotLimit)
	assert.Equal(t, 0, stub.gotOffset)
}

func TestListTests_Pagination(t *testing.T) {
	stub := &archiveStub{}
	router := newTestsRouter(stub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tests?page=3&page_size=10", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, stub.gotLimit)
	assert.Equal(t, 20, stub.gotOffset)
}

func TestListTests_BadParamsFallBackToDefaults(t *testing.T) {
	stub := &archiveStub{}
	router := newTestsRouter(stub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tests?page=zero&page_size=-4", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultTestPageSize, stub.gotLimit)
	assert.Equal(t, 0, stub.gotOffset)
}

func TestGetTest(t *testing.T) {
	stub := &archiveStub{test: &models.GeneratedTest{ID: "a1", Module: models.ModuleReading}}
	router := newTestsRouter(stub)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tests/a1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1", stub.gotID)
	assert.Contains(t, w.Body.String(), `"testId":"a1"`)
}

func TestGetTest_NotFound(t *testing.T) {
	router := newTestsRouter(&archiveStub{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tests/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RECORD_NOT_FOUND")
}

func TestGetUsage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewUsageHandler(&stubUsage{}, observability.NewLogger(nil))
	router := gin.New()
	router.GET("/v1/usage", func(c *gin.Context) { c.Set(middleware.UserIDKey, 7) }, h.GetUsage)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"overCeiling":false`)
}
