// Package models holds the GORM entities of the expense ledger and the budget
// engine. Users live in the external auth service; rows only carry their id.
package models

import (
	"time"

	"gorm.io/gorm"

	"zapgastos/internal/uuid"
)

// Base is embedded by the soft-deletable entities. Ids are UUIDv7 so rows sort
// by creation time.
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Category{},
		&Transaction{},
		&Budget{},
		&BudgetPeriod{},
		&ExpenseApplication{},
		&APIKey{},
		&AuditLog{},
	}
}
