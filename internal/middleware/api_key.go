package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
)

const apiKeyHeader = "X-API-Key"

// KeyAuthenticator resolves a raw API key.
type KeyAuthenticator interface {
	Authenticate(rawKey string, now time.Time) (*models.APIKey, error)
}

// APIKeyAuth validates the X-API-Key header used by the N8N workflow and
// operator tooling. The key owner becomes the request user.
func APIKeyAuth(keys KeyAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(apiKeyHeader)
		if raw == "" {
			abortWithError(c, apperrors.WithMessage(apperrors.ErrInvalidAPIKey, "Invalid or missing API key"))
			return
		}

		key, err := keys.Authenticate(raw, time.Now())
		if err != nil {
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				appErr = apperrors.ErrInternalServer
			}
			if appErr.Code == apperrors.ErrInternalServer.Code {
				logger.Get().Errorw("api key authentication failed", "error", err, "path", c.Request.URL.Path)
			}
			abortWithError(c, appErr)
			return
		}

		c.Set(UserIDKey, key.UserID)
		c.Set(APIKeyKey, key)
		c.Next()
	}
}

// RequireScope rejects API keys that were not granted scope. Keys with the
// system scope pass every check.
func RequireScope(scope models.APIKeyScope) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := APIKeyFromContext(c)
		if !ok {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}
		if !key.HasScope(scope) && !key.HasScope(models.ScopeSystem) {
			abortWithError(c, apperrors.ErrMissingScope)
			return
		}
		c.Next()
	}
}

// APIKeyFromContext returns the key stored by APIKeyAuth.
func APIKeyFromContext(c *gin.Context) (*models.APIKey, bool) {
	v, exists := c.Get(APIKeyKey)
	if !exists {
		return nil, false
	}
	key, ok := v.(*models.APIKey)
	return key, ok
}
