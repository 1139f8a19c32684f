package handlers

import (
	"net/http"

	"ieltsprep/internal/middleware"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// UsageHandler serves the advisory quota counter.
type UsageHandler struct {
	usage  services.UsageServiceInterface
	logger *observability.Logger
}

// NewUsageHandler creates the usage endpoint handler.
func NewUsageHandler(usage services.UsageServiceInterface, logger *observability.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, logger: logger}
}

// GetUsage handles GET /v1/usage. The response is advisory: crossing the
// ceiling never blocks generation, the provider's own 429 does.
func (h *UsageHandler) GetUsage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_usage")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	usage, err := h.usage.GetTodayUsage(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usage":        usage,
		"overCeiling":  usage.TotalTokens >= usage.Ceiling,
		"percentOfDay": percentOf(usage.TotalTokens, usage.Ceiling),
	})
}

func percentOf(used, ceiling int) int {
	if ceiling <= 0 {
		return 0
	}
	return used * 100 / ceiling
}
