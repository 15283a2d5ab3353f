package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"zapgastos/internal/alert"
	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/period"
)

var (
	maxThreshold = decimal.NewFromInt(100)
	// largest value a numeric(10,2) column holds
	maxBudgetLimit = decimal.RequireFromString("99999999.99")
)

// budgetService handles budget-related business logic.
type budgetService struct {
	db               *gorm.DB
	periods          PeriodServicer
	calc             *period.Calculator
	defaultThreshold decimal.Decimal
}

// NewBudgetService creates a new BudgetServicer. defaultThreshold is used
// for budgets created without an explicit alert threshold.
func NewBudgetService(db *gorm.DB, periods PeriodServicer, calc *period.Calculator, defaultThreshold decimal.Decimal) BudgetServicer {
	return &budgetService{db: db, periods: periods, calc: calc, defaultThreshold: defaultThreshold}
}

func validateThreshold(threshold decimal.Decimal) error {
	if !threshold.IsPositive() || threshold.GreaterThan(maxThreshold) {
		return apperrors.ErrInvalidAlertThreshold
	}
	return nil
}

func validateLimit(limit decimal.Decimal) error {
	if !limit.IsPositive() || limit.Round(2).GreaterThan(maxBudgetLimit) {
		return apperrors.ErrInvalidBudgetLimit
	}
	return nil
}

func validateBudgetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "budget name must be between 1 and 100 characters")
	}
	return nil
}

// activeBudgetExists reports whether another active budget covers the category.
func activeBudgetExists(tx *gorm.DB, userID, categoryID, excludeID string) (bool, error) {
	q := tx.Model(&models.Budget{}).
		Where("user_id = ? AND category_id = ? AND is_active = ?", userID, categoryID, true)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBudget creates a budget for an expense category and materializes
// the period containing asOf in the same transaction.
func (s *budgetService) CreateBudget(userID string, in BudgetInput, asOf time.Time) (*models.Budget, error) {
	if err := validateBudgetName(in.Name); err != nil {
		return nil, err
	}
	if err := validateLimit(in.LimitAmount); err != nil {
		return nil, err
	}
	if !in.Periodicity.Valid() {
		return nil, apperrors.ErrInvalidPeriodicity
	}
	threshold := s.defaultThreshold
	if in.AlertThreshold != nil {
		threshold = *in.AlertThreshold
	}
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	budget := &models.Budget{
		UserID:         userID,
		CategoryID:     in.CategoryID,
		Name:           strings.TrimSpace(in.Name),
		LimitAmount:    in.LimitAmount.Round(2),
		Periodicity:    in.Periodicity,
		AlertThreshold: threshold.Round(2),
		IsActive:       true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.Where("id = ? AND user_id = ?", in.CategoryID, userID).First(&category).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCategoryNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if category.Type != models.CategoryTypeExpense {
			return apperrors.WithMessage(apperrors.ErrCategoryTypeMismatch, "budgets can only track expense categories")
		}

		exists, err := activeBudgetExists(tx, userID, in.CategoryID, "")
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if exists {
			return apperrors.ErrActiveBudgetExists
		}

		if err := tx.Create(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		budget.Category = &category

		_, _, err = s.periods.GetOrCreatePeriod(tx, budget, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("budget created",
		"budget_id", budget.ID,
		"user_id", userID,
		"category_id", budget.CategoryID,
		"periodicity", budget.Periodicity,
	)
	return budget, nil
}

// GetUserBudgets returns a paginated list of budgets for the user with optional filters.
func (s *budgetService) GetUserBudgets(
	userID string,
	page pagination.PageRequest,
	isActive *bool,
	periodicity *period.Periodicity,
) (*pagination.PageResponse[models.Budget], error) {
	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}
	if periodicity != nil {
		base = base.Where("periodicity = ?", *periodicity)
	}

	result, err := pagination.Find[models.Budget](base, page, "created_at DESC", func(db *gorm.DB) *gorm.DB {
		return db.Preload("Category")
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetBudgetByID returns a budget by ID if it belongs to the user.
func (s *budgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// GetBudgetWithCurrentPeriod returns the budget and its materialized period
// containing asOf. The period is nil when it has not been created yet.
func (s *budgetService) GetBudgetWithCurrentPeriod(userID, budgetID string, asOf time.Time) (*models.Budget, *models.BudgetPeriod, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.periods.GetCurrentPeriod(nil, budget, asOf)
	if err != nil {
		return nil, nil, err
	}
	return budget, current, nil
}

// GetActiveBudgetForCategory returns the active budget for a category, or
// nil when there is none. A missing budget is not an error.
func (s *budgetService) GetActiveBudgetForCategory(tx *gorm.DB, userID, categoryID string) (*models.Budget, error) {
	if tx == nil {
		tx = s.db
	}
	var budget models.Budget
	err := tx.Where("user_id = ? AND category_id = ? AND is_active = ?", userID, categoryID, true).
		First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// UpdateBudget updates a budget. A new limit only rewrites the limit snapshot
// of the current period; its status is left for the next expense or
// reconciliation to re-derive. Changing periodicity or reactivating the budget
// realigns its open periods onto the current cadence and materializes the
// current period.
func (s *budgetService) UpdateBudget(userID, budgetID string, update BudgetUpdate, asOf time.Time) (*models.Budget, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Name != nil {
		if err := validateBudgetName(*update.Name); err != nil {
			return nil, err
		}
		updates["name"] = strings.TrimSpace(*update.Name)
	}
	limitChanged := false
	if update.LimitAmount != nil {
		if err := validateLimit(*update.LimitAmount); err != nil {
			return nil, err
		}
		if !update.LimitAmount.Equal(budget.LimitAmount) {
			limitChanged = true
			updates["limit_amount"] = update.LimitAmount.Round(2)
		}
	}
	periodicityChanged := false
	if update.Periodicity != nil {
		if !update.Periodicity.Valid() {
			return nil, apperrors.ErrInvalidPeriodicity
		}
		if *update.Periodicity != budget.Periodicity {
			periodicityChanged = true
			updates["periodicity"] = *update.Periodicity
		}
	}
	if update.AlertThreshold != nil {
		if err := validateThreshold(*update.AlertThreshold); err != nil {
			return nil, err
		}
		updates["alert_threshold"] = update.AlertThreshold.Round(2)
	}
	reactivated := false
	if update.IsActive != nil && *update.IsActive != budget.IsActive {
		reactivated = *update.IsActive
		updates["is_active"] = *update.IsActive
	}

	if len(updates) == 0 {
		return budget, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if reactivated {
			exists, err := activeBudgetExists(tx, userID, budget.CategoryID, budget.ID)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if exists {
				return apperrors.ErrActiveBudgetExists
			}
		}

		if err := tx.Model(&models.Budget{}).Where("id = ?", budget.ID).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("id = ?", budget.ID).First(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if !limitChanged && !periodicityChanged && !reactivated {
			return nil
		}

		var current *models.BudgetPeriod
		switch {
		case budget.IsActive && (periodicityChanged || reactivated):
			current, err = s.periods.Realign(tx, budget, asOf)
		case budget.IsActive:
			current, _, err = s.periods.GetOrCreatePeriod(tx, budget, asOf)
		default:
			current, err = s.periods.GetCurrentPeriod(tx, budget, asOf)
		}
		if err != nil {
			return err
		}
		if limitChanged && current != nil && !current.LimitAmount.Equal(budget.LimitAmount) {
			if err := tx.Model(current).Update("limit_amount", budget.LimitAmount).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return budget, nil
}

// DeactivateBudget soft-deactivates a budget. Its periods stay readable.
func (s *budgetService) DeactivateBudget(userID, budgetID string) error {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return err
	}
	if !budget.IsActive {
		return nil
	}
	if err := s.db.Model(&models.Budget{}).Where("id = ?", budget.ID).Update("is_active", false).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// DeleteBudget permanently removes a budget together with its periods and
// their expense applications.
func (s *budgetService) DeleteBudget(userID, budgetID string) error {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		periodIDs := tx.Model(&models.BudgetPeriod{}).Select("id").Where("budget_id = ?", budget.ID)
		if err := tx.Where("period_id IN (?)", periodIDs).Delete(&models.ExpenseApplication{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("budget_id = ?", budget.ID).Delete(&models.BudgetPeriod{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Unscoped().Delete(&models.Budget{}, "id = ?", budget.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetBudgetProgress reports the current period of a budget. When the period
// has not been materialized yet the computed window is returned with zero spend.
func (s *budgetService) GetBudgetProgress(userID, budgetID string, asOf time.Time) (*BudgetProgress, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}
	return s.progress(budget, asOf)
}

// GetBudgetSummaries reports progress for every active budget of the user.
func (s *budgetService) GetBudgetSummaries(userID string, asOf time.Time) ([]BudgetProgress, error) {
	var budgets []models.Budget
	if err := s.db.Preload("Category").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("name ASC").
		Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summaries := make([]BudgetProgress, 0, len(budgets))
	for i := range budgets {
		p, err := s.progress(&budgets[i], asOf)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *p)
	}
	return summaries, nil
}

func (s *budgetService) progress(budget *models.Budget, asOf time.Time) (*BudgetProgress, error) {
	w, err := s.calc.Compute(budget.Periodicity, asOf)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidPeriodicity, err)
	}
	current, err := s.periods.GetCurrentPeriod(nil, budget, asOf)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = &models.BudgetPeriod{
			LimitAmount: budget.LimitAmount,
			Spent:       decimal.Zero,
			StartDate:   w.Start.UTC(),
			EndDate:     w.End.UTC(),
			Status:      models.PeriodStatusActive,
		}
	}

	progress := &BudgetProgress{
		BudgetID:       budget.ID,
		Name:           budget.Name,
		CategoryID:     budget.CategoryID,
		Periodicity:    budget.Periodicity,
		IsActive:       budget.IsActive,
		PeriodID:       current.ID,
		PeriodKey:      w.Key,
		PeriodStart:    current.StartDate,
		PeriodEnd:      current.EndDate,
		Limit:          current.LimitAmount,
		Spent:          current.Spent,
		Remaining:      current.Remaining(),
		Percentage:     alert.PercentSpent(current).Round(2),
		AlertThreshold: budget.AlertThreshold,
		Status:         current.Status,
		AlertSent:      current.AlertSent,
		DaysRemaining:  s.calc.DaysRemaining(w, asOf),
	}
	if budget.Category != nil {
		progress.CategoryName = budget.Category.Name
	}
	return progress, nil
}
