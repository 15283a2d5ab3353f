package models

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeExpense CategoryType = "despesa"
	CategoryTypeIncome  CategoryType = "receita"
)

// Category represents a transaction category
type Category struct {
	Base
	UserID      string       `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string       `gorm:"size:100;not null" json:"name"`
	Type        CategoryType `gorm:"size:20;not null" json:"type"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Color       string       `json:"color"`
}
