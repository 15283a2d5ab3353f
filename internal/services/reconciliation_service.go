package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
	"zapgastos/internal/period"
)

// reconciliationService rebuilds period totals from the ledger and runs the
// period rollover job.
type reconciliationService struct {
	db           *gorm.DB
	periods      PeriodServicer
	calc         *period.Calculator
	rolloverLead time.Duration
}

// NewReconciliationService creates a new ReconciliationServicer. The next
// period of a budget is created once its current period ends within rolloverLead.
func NewReconciliationService(db *gorm.DB, periods PeriodServicer, calc *period.Calculator, rolloverLead time.Duration) ReconciliationServicer {
	return &reconciliationService{db: db, periods: periods, calc: calc, rolloverLead: rolloverLead}
}

// ledgerTotal sums the expense rows of the budget's owner and category that
// fall within [start, end+1s).
func ledgerTotal(tx *gorm.DB, budget *models.Budget, p *models.BudgetPeriod) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND category_id = ? AND type = ? AND date >= ? AND date < ?",
			budget.UserID, budget.CategoryID, models.TransactionTypeExpense,
			p.StartDate.UTC(), p.EndDate.Add(time.Second).UTC()).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Round(2), nil
}

// RecomputePeriod overwrites a period's spent total with the ledger sum.
func (s *reconciliationService) RecomputePeriod(periodID string) (*models.BudgetPeriod, error) {
	var result *models.BudgetPeriod
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.RecomputePeriodTx(tx, periodID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputePeriodTx is RecomputePeriod inside the caller's transaction.
// It may lower spent and revert exceeded to active, and never touches alert_sent.
func (s *reconciliationService) RecomputePeriodTx(tx *gorm.DB, periodID string) (*models.BudgetPeriod, error) {
	var p models.BudgetPeriod
	if err := tx.Where("id = ?", periodID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var budget models.Budget
	if err := tx.Unscoped().Where("id = ?", p.BudgetID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.recompute(tx, &budget, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *reconciliationService) recompute(tx *gorm.DB, budget *models.Budget, p *models.BudgetPeriod) error {
	total, err := ledgerTotal(tx, budget, p)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	previous := p.Spent
	p.Spent = total
	p.Status = p.DeriveStatus()

	if err := tx.Model(&models.BudgetPeriod{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{"spent": p.Spent, "status": p.Status}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if !previous.Equal(total) {
		logger.Get().Infow("budget period recomputed",
			"period_id", p.ID,
			"budget_id", budget.ID,
			"previous", previous.String(),
			"spent", total.String(),
		)
	}
	return nil
}

// EnsureCurrentPeriod creates the period containing asOf without touching totals.
func (s *reconciliationService) EnsureCurrentPeriod(budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, bool, error) {
	return s.periods.CreatePeriod(budget, asOf)
}

// RecomputeAll reconciles every active budget, optionally only those of one
// user. Each budget runs in its own transaction; a failure is recorded in
// the summary and the remaining budgets are still processed.
func (s *reconciliationService) RecomputeAll(userID *string, asOf time.Time) (*ReconciliationSummary, error) {
	q := s.db.Where("is_active = ?", true)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var budgets []models.Budget
	if err := q.Order("created_at ASC").Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summary := &ReconciliationSummary{Details: []BudgetReconciliation{}}
	for i := range budgets {
		detail := s.reconcileBudget(&budgets[i], asOf)
		if detail.Error != "" {
			summary.Failed++
			logger.Get().Warnw("budget reconciliation failed",
				"budget_id", detail.BudgetID,
				"error", detail.Error,
			)
		} else {
			summary.BudgetsUpdated++
			summary.PeriodsUpdated += detail.PeriodsUpdated
			if detail.PeriodCreated {
				summary.PeriodsCreated++
			}
		}
		summary.Details = append(summary.Details, detail)
	}

	logger.Get().Infow("budget reconciliation finished",
		"budgets_updated", summary.BudgetsUpdated,
		"periods_updated", summary.PeriodsUpdated,
		"periods_created", summary.PeriodsCreated,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (s *reconciliationService) reconcileBudget(budget *models.Budget, asOf time.Time) BudgetReconciliation {
	detail := BudgetReconciliation{
		BudgetID:   budget.ID,
		BudgetName: budget.Name,
		UserID:     budget.UserID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkAccountable(budget); err != nil {
			return err
		}

		var category models.Category
		if err := tx.Where("id = ? AND user_id = ?", budget.CategoryID, budget.UserID).First(&category).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCategoryNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		_, created, err := s.periods.GetOrCreatePeriod(tx, budget, asOf)
		if err != nil {
			return err
		}

		var periods []models.BudgetPeriod
		if err := tx.Where("budget_id = ?", budget.ID).Order("start_date ASC").Find(&periods).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for i := range periods {
			if err := s.recompute(tx, budget, &periods[i]); err != nil {
				return err
			}
		}

		detail.PeriodCreated = created
		detail.PeriodsUpdated = len(periods)
		return nil
	})
	if err != nil {
		detail.Error = err.Error()
		detail.PeriodCreated = false
		detail.PeriodsUpdated = 0
	}
	return detail
}

// Rollover finalizes every period that ended before asOf and creates the
// next period of each active budget whose current period ends within the
// rollover lead.
func (s *reconciliationService) Rollover(asOf time.Time) (*RolloverSummary, error) {
	summary := &RolloverSummary{Created: []RolledPeriod{}}

	res := s.db.Model(&models.BudgetPeriod{}).
		Where("end_date <= ? AND status <> ?", asOf.Add(-time.Second).UTC(), models.PeriodStatusFinalized).
		Update("status", models.PeriodStatusFinalized)
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	summary.PeriodsFinalized = res.RowsAffected

	var budgets []models.Budget
	if err := s.db.Where("is_active = ?", true).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range budgets {
		budget := &budgets[i]
		current, err := s.calc.Compute(budget.Periodicity, asOf)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("budget %s: %v", budget.ID, err))
			continue
		}
		if current.Until().Sub(asOf) > s.rolloverLead {
			continue
		}
		next, created, err := s.periods.CreatePeriod(budget, current.Until())
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("budget %s: %v", budget.ID, err))
			continue
		}
		if created {
			summary.PeriodsCreated++
			summary.Created = append(summary.Created, RolledPeriod{
				BudgetID:  budget.ID,
				PeriodID:  next.ID,
				PeriodKey: next.Key(),
			})
		}
	}

	logger.Get().Infow("budget rollover finished",
		"periods_finalized", summary.PeriodsFinalized,
		"periods_created", summary.PeriodsCreated,
		"errors", len(summary.Errors),
	)
	return summary, nil
}
