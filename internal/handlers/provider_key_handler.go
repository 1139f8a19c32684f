package handlers

import (
	"net/http"

	"ieltsprep/internal/middleware"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	contextutils "ieltsprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// ProviderKeyHandler manages each user's stored Gemini API key.
type ProviderKeyHandler struct {
	providerKeys services.ProviderKeyServiceInterface
	logger       *observability.Logger
}

// NewProviderKeyHandler creates the provider-key endpoints.
func NewProviderKeyHandler(providerKeys services.ProviderKeyServiceInterface, logger *observability.Logger) *ProviderKeyHandler {
	return &ProviderKeyHandler{providerKeys: providerKeys, logger: logger}
}

type setProviderKeyRequest struct {
	APIKey string `json:"apiKey" binding:"required"`
}

// SetProviderKey handles PUT /v1/provider-key.
func (h *ProviderKeyHandler) SetProviderKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_provider_key")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	var req setProviderKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, contextutils.WrapError(contextutils.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.providerKeys.SetProviderKey(ctx, userID, req.APIKey); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// HasProviderKey handles GET /v1/provider-key. The key itself never leaves
// the server; the response only says whether one is stored.
func (h *ProviderKeyHandler) HasProviderKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "has_provider_key")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	_, err := h.providerKeys.GetProviderKey(ctx, userID)
	if err != nil {
		if contextutils.GetErrorCode(err) == contextutils.ErrorCodeRecordNotFound {
			c.JSON(http.StatusOK, gin.H{"hasKey": false})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasKey": true})
}

// DeleteProviderKey handles DELETE /v1/provider-key.
func (h *ProviderKeyHandler) DeleteProviderKey(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_provider_key")
	defer span.End()

	userID, ok := middleware.GetUserID(c)
	if !ok {
		respondError(c, contextutils.ErrUnauthorized)
		return
	}

	if err := h.providerKeys.DeleteProviderKey(ctx, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
