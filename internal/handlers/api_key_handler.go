package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/models"
	"zapgastos/internal/services"
)

// APIKeyHandler manages machine keys for the chat pipeline.
type APIKeyHandler struct {
	apiKeyService services.APIKeyServicer
	auditService  services.AuditServicer
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(apiKeyService services.APIKeyServicer, auditService services.AuditServicer) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService, auditService: auditService}
}

// CreateAPIKeyRequest represents the request payload for issuing an API key.
// The system scope is only granted through the operator CLI.
type CreateAPIKeyRequest struct {
	Name      string               `json:"name" binding:"required,min=1,max=100"`
	Scopes    []models.APIKeyScope `json:"scopes" binding:"required,min=1,dive,api_scope"`
	ExpiresAt *time.Time           `json:"expires_at"`
}

// CreateAPIKeyResponse returns the raw key. It is never shown again.
type CreateAPIKeyResponse struct {
	APIKey *models.APIKey `json:"api_key"`
	Key    string         `json:"key"`
}

// CreateAPIKey issues a new API key for the authenticated user.
// @Summary     Create API key
// @Tags        api-keys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateAPIKeyRequest true "Key details"
// @Success     201 {object} CreateAPIKeyResponse "Key created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Scope not grantable"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /api-keys [post]
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	for _, s := range req.Scopes {
		if s == models.ScopeSystem {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrForbidden, "the system scope cannot be granted through the API"))
			return
		}
	}

	key, raw, err := h.apiKeyService.CreateAPIKey(userID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_API_KEY", "api_key", key.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "scopes": key.Scopes})

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKey: key, Key: raw})
}

// ListAPIKeys lists the caller's keys without their secrets.
// @Summary     List API keys
// @Tags        api-keys
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.APIKey "API keys"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /api-keys [get]
func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	keys, err := h.apiKeyService.ListAPIKeys(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

// RevokeAPIKey deactivates one of the caller's keys.
// @Summary     Revoke API key
// @Tags        api-keys
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "API key ID"
// @Success     200 {object} MessageResponse "Key revoked"
// @Failure     400 {object} ErrorResponse "Invalid key ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Key not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /api-keys/{id} [delete]
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	keyID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.apiKeyService.RevokeAPIKey(userID, keyID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "REVOKE_API_KEY", "api_key", keyID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
