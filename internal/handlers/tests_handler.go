package handlers

import (
	"net/http"

	"ieltsprep/internal/middleware"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// defaultTestPageSize is the page size when the client sends none.
const defaultTestPageSize = 20

// TestsHandler serves the saved-test archive.
type TestsHandler struct {
	records services.TestRecordServiceInterface
	logger  *observability.Logger
}

// NewTestsHandler creates the archive read endpoints.
func NewTestsHandler(records services.TestRecordServiceInterface, logger *observability.Logger) *TestsHandler {
	return &TestsHandler{records: records, logger: logger}
}

// ListTests handles GET /v1/tests.
func (h *TestsHandler) ListTests(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_tests")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	page, size := ParsePagination(c, 1, defaultTestPageSize, services.DefaultTestListLimit)

	records, err := h.records.ListTests(ctx, userID, size, (page-1)*size)
	if err != nil {
		respondError(c, err)
		return
	}
	WritePaginated(c, "tests", records, gin.H{
		"page":     page,
		"pageSize": size,
		"count":    len(records),
	}, nil)
}

// GetTest handles GET /v1/tests/:id.
func (h *TestsHandler) GetTest(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_test")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	test, err := h.records.GetTest(ctx, userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}
