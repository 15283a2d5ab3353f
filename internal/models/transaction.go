package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeExpense TransactionType = "despesa"
	TransactionTypeIncome  TransactionType = "receita"
)

// Channel is where a transaction was captured.
type Channel string

const (
	ChannelConversation Channel = "conversation"
	ChannelAudio        Channel = "audioMessage"
	ChannelImage        Channel = "imageMessage"
	ChannelWebApp       Channel = "webApp"
)

// Transaction is a ledger entry. Expense rows are the source of truth that
// budget periods are reconciled against.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index:idx_tx_user_category_date" json:"user_id"`
	CategoryID  *string         `gorm:"type:uuid;index:idx_tx_user_category_date" json:"category_id,omitempty"`
	Type        TransactionType `gorm:"size:20;not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Description string          `json:"description"`
	Channel     Channel         `gorm:"size:20;not null;default:webApp" json:"channel"`
	Date        time.Time       `gorm:"not null;index:idx_tx_user_category_date" json:"date"`

	// Relationships
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
