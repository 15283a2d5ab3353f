package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"zapgastos/internal/alert"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/period"
)

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID, name string, categoryType models.CategoryType, description, icon, color string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest, categoryType *models.CategoryType) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID, name, description, icon, color string) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// TransactionInput carries a new ledger entry.
type TransactionInput struct {
	CategoryID  *string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	Channel     models.Channel
	Date        time.Time
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *string
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, *alert.Descriptor, error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
}

// BudgetInput carries the fields of a new budget. A nil AlertThreshold uses
// the configured default.
type BudgetInput struct {
	CategoryID     string
	Name           string
	LimitAmount    decimal.Decimal
	Periodicity    period.Periodicity
	AlertThreshold *decimal.Decimal
}

// BudgetUpdate holds the optional fields of a budget update.
type BudgetUpdate struct {
	Name           *string
	LimitAmount    *decimal.Decimal
	Periodicity    *period.Periodicity
	AlertThreshold *decimal.Decimal
	IsActive       *bool
}

// BudgetProgress contains spending vs limit for a budget's current period.
// PeriodID is empty when the current period has not been materialized yet.
type BudgetProgress struct {
	BudgetID       string              `json:"budget_id"`
	Name           string              `json:"name"`
	CategoryID     string              `json:"category_id"`
	CategoryName   string              `json:"category_name,omitempty"`
	Periodicity    period.Periodicity  `json:"periodicity"`
	IsActive       bool                `json:"is_active"`
	PeriodID       string              `json:"period_id,omitempty"`
	PeriodKey      period.Key          `json:"period_key"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	Limit          decimal.Decimal     `json:"limit"`
	Spent          decimal.Decimal     `json:"spent"`
	Remaining      decimal.Decimal     `json:"remaining"`
	Percentage     decimal.Decimal     `json:"percentage"`
	AlertThreshold decimal.Decimal     `json:"alert_threshold"`
	Status         models.PeriodStatus `json:"status"`
	AlertSent      bool                `json:"alert_sent"`
	DaysRemaining  int                 `json:"days_remaining"`
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	CreateBudget(userID string, in BudgetInput, asOf time.Time) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool, periodicity *period.Periodicity) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	GetBudgetWithCurrentPeriod(userID, budgetID string, asOf time.Time) (*models.Budget, *models.BudgetPeriod, error)
	GetActiveBudgetForCategory(tx *gorm.DB, userID, categoryID string) (*models.Budget, error)
	UpdateBudget(userID, budgetID string, update BudgetUpdate, asOf time.Time) (*models.Budget, error)
	DeactivateBudget(userID, budgetID string) error
	DeleteBudget(userID, budgetID string) error
	GetBudgetProgress(userID, budgetID string, asOf time.Time) (*BudgetProgress, error)
	GetBudgetSummaries(userID string, asOf time.Time) ([]BudgetProgress, error)
}

// PeriodServicer owns budget periods: creation, expense accumulation and
// alert bookkeeping.
type PeriodServicer interface {
	GetOrCreatePeriod(tx *gorm.DB, budget *models.Budget, reference time.Time) (*models.BudgetPeriod, bool, error)
	CreatePeriod(budget *models.Budget, targetDate time.Time) (*models.BudgetPeriod, bool, error)
	GetCurrentPeriod(tx *gorm.DB, budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, error)
	GetPeriodByID(periodID string) (*models.BudgetPeriod, error)
	ListBudgetPeriods(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetPeriod], error)
	ApplyExpense(tx *gorm.DB, budget *models.Budget, transactionID string, amount decimal.Decimal, transactionDate time.Time) (*models.BudgetPeriod, *alert.Descriptor, error)
	Realign(tx *gorm.DB, budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, error)
	ListAlertablePeriods(userID string) ([]alert.Descriptor, error)
	MarkAlertSent(periodID string) error
	MarkAlertSentForUser(userID, periodID string) error
}

// BudgetReconciliation is the per-budget line of a reconciliation run.
type BudgetReconciliation struct {
	BudgetID       string `json:"budget_id"`
	BudgetName     string `json:"budget_name"`
	UserID         string `json:"user_id"`
	PeriodsUpdated int    `json:"periods_updated"`
	PeriodCreated  bool   `json:"period_created"`
	Error          string `json:"error,omitempty"`
}

// ReconciliationSummary reports the outcome of RecomputeAll.
type ReconciliationSummary struct {
	BudgetsUpdated int                    `json:"budgets_updated"`
	PeriodsUpdated int                    `json:"periods_updated"`
	PeriodsCreated int                    `json:"periods_created"`
	Failed         int                    `json:"failed"`
	Details        []BudgetReconciliation `json:"details"`
}

// RolledPeriod identifies a period created ahead of time by Rollover.
type RolledPeriod struct {
	BudgetID  string     `json:"budget_id"`
	PeriodID  string     `json:"period_id"`
	PeriodKey period.Key `json:"period_key"`
}

// RolloverSummary reports the outcome of Rollover.
type RolloverSummary struct {
	PeriodsFinalized int64          `json:"periods_finalized"`
	PeriodsCreated   int            `json:"periods_created"`
	Created          []RolledPeriod `json:"created"`
	Errors           []string       `json:"errors,omitempty"`
}

// ReconciliationServicer rebuilds period totals from the transaction ledger.
type ReconciliationServicer interface {
	RecomputePeriod(periodID string) (*models.BudgetPeriod, error)
	RecomputePeriodTx(tx *gorm.DB, periodID string) (*models.BudgetPeriod, error)
	EnsureCurrentPeriod(budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, bool, error)
	RecomputeAll(userID *string, asOf time.Time) (*ReconciliationSummary, error)
	Rollover(asOf time.Time) (*RolloverSummary, error)
}

// APIKeyServicer issues and verifies machine API keys.
type APIKeyServicer interface {
	CreateAPIKey(userID, name string, scopes []models.APIKeyScope, expiresAt *time.Time) (*models.APIKey, string, error)
	ListAPIKeys(userID string) ([]models.APIKey, error)
	RevokeAPIKey(userID, keyID string) error
	Authenticate(rawKey string, now time.Time) (*models.APIKey, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
