package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
)

const (
	apiKeySecretBytes = 24
	apiKeyLookupLen   = 8
)

// apiKeyService issues and verifies machine API keys.
type apiKeyService struct {
	db   *gorm.DB
	cost int
}

// NewAPIKeyService creates a new APIKeyServicer.
func NewAPIKeyService(db *gorm.DB) APIKeyServicer {
	return &apiKeyService{db: db, cost: bcrypt.DefaultCost}
}

// NewAPIKeyServiceWithCost is NewAPIKeyService with a custom bcrypt cost,
// for tests that issue many keys.
func NewAPIKeyServiceWithCost(db *gorm.DB, cost int) APIKeyServicer {
	return &apiKeyService{db: db, cost: cost}
}

func validScope(scope models.APIKeyScope) bool {
	switch scope {
	case models.ScopeTransactions, models.ScopeBudgets, models.ScopeSystem:
		return true
	default:
		return false
	}
}

// CreateAPIKey issues a key and returns it in plain text exactly once.
func (s *apiKeyService) CreateAPIKey(userID, name string, scopes []models.APIKeyScope, expiresAt *time.Time) (*models.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", apperrors.WithMessage(apperrors.ErrInvalidInput, "api key name is required")
	}
	if len(scopes) == 0 {
		return nil, "", apperrors.WithMessage(apperrors.ErrInvalidScope, "at least one scope is required")
	}
	names := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if !validScope(scope) {
			return nil, "", apperrors.ErrInvalidScope
		}
		names = append(names, string(scope))
	}

	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	raw := models.APIKeyPrefix + hex.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.cost)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	key := &models.APIKey{
		UserID:    userID,
		Name:      name,
		KeyPrefix: raw[:apiKeyLookupLen],
		KeyHash:   string(hash),
		Scopes:    strings.Join(names, ","),
		IsActive:  true,
		ExpiresAt: expiresAt,
	}
	if err := s.db.Create(key).Error; err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.Get().Infow("api key created", "key_id", key.ID, "user_id", userID, "scopes", key.Scopes)
	return key, raw, nil
}

// ListAPIKeys returns the user's keys without their hashes.
func (s *apiKeyService) ListAPIKeys(userID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return keys, nil
}

// RevokeAPIKey deactivates a key.
func (s *apiKeyService) RevokeAPIKey(userID, keyID string) error {
	res := s.db.Model(&models.APIKey{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("is_active", false)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAPIKeyNotFound
	}
	return nil
}

// Authenticate resolves a plain-text key to its active, unexpired record.
func (s *apiKeyService) Authenticate(rawKey string, now time.Time) (*models.APIKey, error) {
	if !strings.HasPrefix(rawKey, models.APIKeyPrefix) || len(rawKey) <= apiKeyLookupLen {
		return nil, apperrors.ErrInvalidAPIKey
	}

	var candidates []models.APIKey
	if err := s.db.Where("key_prefix = ? AND is_active = ?", rawKey[:apiKeyLookupLen], true).
		Find(&candidates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range candidates {
		key := &candidates[i]
		err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			continue
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if key.IsExpired(now) {
			return nil, apperrors.ErrInvalidAPIKey
		}
		used := now.UTC()
		if err := s.db.Model(key).Update("last_used_at", used).Error; err != nil {
			logger.Get().Warnw("failed to record api key usage", "key_id", key.ID, "error", err)
		}
		key.LastUsedAt = &used
		return key, nil
	}
	return nil, apperrors.ErrInvalidAPIKey
}
