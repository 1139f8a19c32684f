package handlers

import (
	"net/http"
	"sort"

	"ieltsprep/internal/models"
	"ieltsprep/internal/observability"

	"github.com/gin-gonic/gin"
)

// CatalogHandler exposes the supported question-type registry so clients
// can build pickers without hardcoding the list.
type CatalogHandler struct {
	logger *observability.Logger
}

// NewCatalogHandler creates the catalog listing endpoint.
func NewCatalogHandler(logger *observability.Logger) *CatalogHandler {
	return &CatalogHandler{logger: logger}
}

// ListQuestionTypes handles GET /v1/question-types.
func (h *CatalogHandler) ListQuestionTypes(c *gin.Context) {
	reading := models.ReadingQuestionTypes()
	listening := models.ListeningQuestionTypes()
	sort.Strings(reading)
	sort.Strings(listening)

	c.JSON(http.StatusOK, gin.H{
		"reading":   reading,
		"listening": listening,
		"writing":   []string{models.WritingTask1, models.WritingTask2, models.WritingFullTest},
		"speaking":  []string{"PART1", "PART2", "PART3", models.SpeakingFullTest},
		"visuals":   models.ConcreteVisualTypes(),
	})
}
