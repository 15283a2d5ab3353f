package models

import (
	"time"

	"zapgastos/internal/period"
	"zapgastos/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultAlertThreshold is the percentage used when a budget is created without one.
var DefaultAlertThreshold = decimal.NewFromInt(80)

// Budget is a standing spending limit for one category of one user.
type Budget struct {
	Base
	UserID         string             `gorm:"type:uuid;not null;index:idx_budget_user_category" json:"user_id"`
	CategoryID     string             `gorm:"type:uuid;not null;index:idx_budget_user_category" json:"category_id"`
	Name           string             `gorm:"size:100;not null" json:"name"`
	LimitAmount    decimal.Decimal    `gorm:"type:numeric(10,2);not null" json:"limit_amount"`
	Periodicity    period.Periodicity `gorm:"size:20;not null;default:monthly" json:"periodicity"`
	AlertThreshold decimal.Decimal    `gorm:"type:numeric(5,2);not null" json:"alert_threshold"`
	IsActive       bool               `gorm:"not null;default:true" json:"is_active"`

	// Relationships
	Category *Category     `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Periods  []BudgetPeriod `gorm:"foreignKey:BudgetID" json:"periods,omitempty"`
}

// PeriodStatus is the lifecycle state of a budget period.
type PeriodStatus string

const (
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusExceeded  PeriodStatus = "exceeded"
	PeriodStatusFinalized PeriodStatus = "finalized"
)

// BudgetPeriod is one accounting window of a budget. Half and Week are zero
// when the periodicity does not use them so the unique key never contains NULLs.
// Periods are only removed together with their budget, so there is no soft delete.
type BudgetPeriod struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	BudgetID    string          `gorm:"type:uuid;not null;uniqueIndex:uq_budget_period,priority:1" json:"budget_id"`
	Year        int             `gorm:"not null;uniqueIndex:uq_budget_period,priority:2" json:"year"`
	Month       int             `gorm:"not null;uniqueIndex:uq_budget_period,priority:3" json:"month"`
	Half        int             `gorm:"not null;default:0;uniqueIndex:uq_budget_period,priority:4" json:"half,omitempty"`
	Week        int             `gorm:"not null;default:0;uniqueIndex:uq_budget_period,priority:5" json:"week,omitempty"`
	LimitAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"limit_amount"`
	Spent       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"spent"`
	StartDate   time.Time       `gorm:"not null;index" json:"start_date"`
	EndDate     time.Time       `gorm:"not null;index" json:"end_date"`
	Status      PeriodStatus    `gorm:"size:20;not null;default:active" json:"status"`
	AlertSent   bool            `gorm:"not null;default:false" json:"alert_sent"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Budget *Budget `gorm:"foreignKey:BudgetID" json:"-"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *BudgetPeriod) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}

// Key returns the calendar key the period was created for.
func (p *BudgetPeriod) Key() period.Key {
	return period.Key{Year: p.Year, Month: p.Month, Half: p.Half, Week: p.Week}
}

// Covers reports whether t falls within [StartDate, EndDate+1s).
func (p *BudgetPeriod) Covers(t time.Time) bool {
	return !t.Before(p.StartDate) && t.Before(p.EndDate.Add(time.Second))
}

// Remaining is the limit minus the spent total; negative once overspent.
func (p *BudgetPeriod) Remaining() decimal.Decimal {
	return p.LimitAmount.Sub(p.Spent)
}

// DeriveStatus applies the status rule after spent changed. Finalized periods
// never change, an overspent period becomes exceeded, and an exceeded period
// that dropped back to or below the limit becomes active again.
func (p *BudgetPeriod) DeriveStatus() PeriodStatus {
	switch {
	case p.Status == PeriodStatusFinalized:
		return PeriodStatusFinalized
	case p.Spent.GreaterThan(p.LimitAmount):
		return PeriodStatusExceeded
	case p.Status == PeriodStatusExceeded:
		return PeriodStatusActive
	case p.Status == "":
		return PeriodStatusActive
	default:
		return p.Status
	}
}

// ExpenseApplication records that a ledger transaction has been added to a
// period's spent total. The unique transaction id makes re-application a no-op.
type ExpenseApplication struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string          `gorm:"type:uuid;not null;uniqueIndex" json:"transaction_id"`
	PeriodID      string          `gorm:"type:uuid;not null;index" json:"period_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	AppliedAt     time.Time       `gorm:"not null" json:"applied_at"`
}

// TableName overrides the default table name.
func (ExpenseApplication) TableName() string { return "budget_expense_applications" }

// BeforeCreate hook generates a UUIDv7 for new records
func (a *ExpenseApplication) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New()
	}
	return nil
}
