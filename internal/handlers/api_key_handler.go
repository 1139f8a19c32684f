package handlers

import (
	"net/http"
	"strconv"

	"ieltsprep/internal/middleware"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// APIKeyHandler manages service keys for non-browser clients.
type APIKeyHandler struct {
	apiKeys services.AuthAPIKeyServiceInterface
	logger  *observability.Logger
}

// NewAPIKeyHandler creates the API-key management endpoints.
func NewAPIKeyHandler(apiKeys services.AuthAPIKeyServiceInterface, logger *observability.Logger) *APIKeyHandler {
	return &APIKeyHandler{apiKeys: apiKeys, logger: logger}
}

type createAPIKeyRequest struct {
	KeyName string `json:"keyName" binding:"required"`
}

// CreateAPIKey handles POST /v1/api-keys. The raw key appears in this
// response only; afterwards only its bcrypt hash exists.
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_api_key")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	key, rawKey, err := h.apiKeys.CreateAPIKey(ctx, userID, req.KeyName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"key":    key,
		"apiKey": rawKey,
	})
}

// ListAPIKeys handles GET /v1/api-keys.
func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_api_keys")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	keys, err := h.apiKeys.ListAPIKeys(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// DeleteAPIKey handles DELETE /v1/api-keys/:id.
func (h *APIKeyHandler) DeleteAPIKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_api_key")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	keyID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "key id must be an integer"))
		return
	}

	if err := h.apiKeys.DeleteAPIKey(ctx, userID, keyID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
