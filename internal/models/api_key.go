package models

import (
	"strings"
	"time"
)

// APIKeyScope limits what a machine key may call.
type APIKeyScope string

const (
	ScopeTransactions APIKeyScope = "transactions"
	ScopeBudgets      APIKeyScope = "budgets"
	ScopeSystem       APIKeyScope = "system"
)

// APIKeyPrefix starts every generated key.
const APIKeyPrefix = "zpg_"

// APIKey authenticates the N8N chat bot and operator tooling. Only the bcrypt
// hash of the key is stored; KeyPrefix narrows the lookup before comparing.
type APIKey struct {
	Base
	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Name       string     `gorm:"size:100;not null" json:"name"`
	KeyPrefix  string     `gorm:"size:12;not null;index" json:"key_prefix"`
	KeyHash    string     `gorm:"not null" json:"-"`
	Scopes     string     `gorm:"not null" json:"scopes"`
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// HasScope reports whether the key was granted scope.
func (k *APIKey) HasScope(scope APIKeyScope) bool {
	for _, s := range strings.Split(k.Scopes, ",") {
		if APIKeyScope(strings.TrimSpace(s)) == scope {
			return true
		}
	}
	return false
}

// IsExpired reports whether the key has expired at now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
