package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zapgastos/internal/alert"
	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/logger"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/period"
)

// periodService handles budget periods and expense accumulation.
type periodService struct {
	db    *gorm.DB
	calc  *period.Calculator
	locks *keyedMutex
}

// NewPeriodService creates a new PeriodServicer.
func NewPeriodService(db *gorm.DB, calc *period.Calculator) PeriodServicer {
	return &periodService{db: db, calc: calc, locks: newKeyedMutex()}
}

// checkAccountable rejects budgets that cannot hold periods.
func checkAccountable(budget *models.Budget) error {
	if !budget.IsActive {
		return apperrors.ErrBudgetInactive
	}
	if !budget.LimitAmount.IsPositive() {
		return apperrors.ErrInvalidBudgetLimit
	}
	if !budget.Periodicity.Valid() {
		return apperrors.ErrInvalidPeriodicity
	}
	return nil
}

func (s *periodService) window(budget *models.Budget, reference time.Time) (period.Window, error) {
	w, err := s.calc.Compute(budget.Periodicity, reference)
	if err != nil {
		return period.Window{}, apperrors.Wrap(apperrors.ErrInvalidPeriodicity, err)
	}
	return w, nil
}

func findPeriodByKey(tx *gorm.DB, budgetID string, key period.Key) (*models.BudgetPeriod, error) {
	var p models.BudgetPeriod
	err := tx.Where("budget_id = ? AND year = ? AND month = ? AND half = ? AND week = ?",
		budgetID, key.Year, key.Month, key.Half, key.Week).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreatePeriod returns the period of budget containing reference,
// creating it when missing. The bool reports whether this call created it.
// Concurrent callers for the same key in this process are serialized, and the
// unique key resolves races with other processes: the loser reads the winner's row.
func (s *periodService) GetOrCreatePeriod(tx *gorm.DB, budget *models.Budget, reference time.Time) (*models.BudgetPeriod, bool, error) {
	w, err := s.window(budget, reference)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(budget.ID + "|" + w.Key.String())
	defer unlock()

	existing, err := findPeriodByKey(tx, budget.ID, w.Key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	p := &models.BudgetPeriod{
		BudgetID:    budget.ID,
		Year:        w.Key.Year,
		Month:       w.Key.Month,
		Half:        w.Key.Half,
		Week:        w.Key.Week,
		LimitAmount: budget.LimitAmount,
		Spent:       decimal.Zero,
		StartDate:   w.Start.UTC(),
		EndDate:     w.End.UTC(),
		Status:      models.PeriodStatusActive,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		winner, err := findPeriodByKey(tx, budget.ID, w.Key)
		if err != nil {
			return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return winner, false, nil
	}

	logger.Get().Infow("budget period created",
		"budget_id", budget.ID,
		"period_id", p.ID,
		"key", w.Key.String(),
	)
	return p, true, nil
}

// CreatePeriod materializes the period containing targetDate. It is
// idempotent: an existing period is returned with created=false.
func (s *periodService) CreatePeriod(budget *models.Budget, targetDate time.Time) (*models.BudgetPeriod, bool, error) {
	if err := checkAccountable(budget); err != nil {
		return nil, false, err
	}

	var result *models.BudgetPeriod
	var created bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, created, err = s.GetOrCreatePeriod(tx, budget, targetDate)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// GetCurrentPeriod returns the materialized period containing asOf, or nil.
func (s *periodService) GetCurrentPeriod(tx *gorm.DB, budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, error) {
	if tx == nil {
		tx = s.db
	}
	w, err := s.window(budget, asOf)
	if err != nil {
		return nil, err
	}
	p, err := findPeriodByKey(tx, budget.ID, w.Key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return p, nil
}

// GetPeriodByID loads a single period.
func (s *periodService) GetPeriodByID(periodID string) (*models.BudgetPeriod, error) {
	var p models.BudgetPeriod
	if err := s.db.Where("id = ?", periodID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &p, nil
}

// ListBudgetPeriods returns the period history of a budget, newest first.
func (s *periodService) ListBudgetPeriods(budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetPeriod], error) {
	base := s.db.Model(&models.BudgetPeriod{}).Where("budget_id = ?", budgetID)

	result, err := pagination.Find[models.BudgetPeriod](base, page, "start_date DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// ApplyExpense adds amount to the period of budget containing
// transactionDate and evaluates the alert rule. It must run inside the
// transaction that committed the ledger row. Applying the same transaction
// id twice leaves the total unchanged and returns no alert. The period is nil
// when no period of the budget can own transactionDate.
func (s *periodService) ApplyExpense(
	tx *gorm.DB,
	budget *models.Budget,
	transactionID string,
	amount decimal.Decimal,
	transactionDate time.Time,
) (*models.BudgetPeriod, *alert.Descriptor, error) {
	if err := checkAccountable(budget); err != nil {
		return nil, nil, err
	}
	if !amount.IsPositive() {
		return nil, nil, apperrors.ErrInvalidExpenseAmount
	}

	p, err := s.periodFor(tx, budget, transactionDate)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		logger.Get().Warnw("expense date outside every budget period",
			"budget_id", budget.ID,
			"transaction_id", transactionID,
			"date", transactionDate,
		)
		return nil, nil, nil
	}

	application := &models.ExpenseApplication{
		TransactionID: transactionID,
		PeriodID:      p.ID,
		Amount:        amount,
		AppliedAt:     time.Now().UTC(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(application)
	if res.Error != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Get().Infow("expense already applied", "transaction_id", transactionID, "budget_id", budget.ID)
		applied, err := s.appliedPeriod(tx, transactionID)
		if err != nil {
			return nil, nil, err
		}
		return applied, nil, nil
	}

	if err := tx.Model(&models.BudgetPeriod{}).
		Where("id = ?", p.ID).
		Update("spent", gorm.Expr("spent + ?", amount)).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := tx.Where("id = ?", p.ID).First(p).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if status := p.DeriveStatus(); status != p.Status {
		if err := tx.Model(p).Update("status", status).Error; err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		p.Status = status
		if status == models.PeriodStatusExceeded {
			logger.Get().Infow("budget period exceeded",
				"budget_id", budget.ID,
				"period_id", p.ID,
				"spent", p.Spent.String(),
				"limit", p.LimitAmount.String(),
			)
		}
	}

	return p, alert.Evaluate(p, budget), nil
}

// periodFor returns the period whose bounds contain date, creating the
// period of the budget's current cadence when none does. It returns nil when
// the key for date belongs to a period cut short by a cadence change that
// does not reach date.
func (s *periodService) periodFor(tx *gorm.DB, budget *models.Budget, date time.Time) (*models.BudgetPeriod, error) {
	var covering models.BudgetPeriod
	err := tx.Where("budget_id = ? AND start_date <= ? AND end_date > ?",
		budget.ID, date.UTC(), date.Add(-time.Second).UTC()).
		Order("start_date DESC").
		First(&covering).Error
	if err == nil {
		return &covering, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	p, _, err := s.GetOrCreatePeriod(tx, budget, date)
	if err != nil {
		return nil, err
	}
	if !p.Covers(date) {
		return nil, nil
	}
	return p, nil
}

// displacedExpense is an applied expense detached from its period so it can
// be applied again under another cadence.
type displacedExpense struct {
	TransactionID string
	Amount        decimal.Decimal
	Date          time.Time
}

// Realign moves a budget onto its current periodicity from the window
// containing asOf onward, so that no two of its periods overlap after a
// cadence change. Open periods of another cadence reaching into that window
// are cut at its start and finalized, or deleted when they start inside it.
// Their expenses dated from the cut onward are applied again under the new
// cadence. Switching back to a cadence whose current window is already
// closed is refused with ErrPeriodicityConflict.
func (s *periodService) Realign(tx *gorm.DB, budget *models.Budget, asOf time.Time) (*models.BudgetPeriod, error) {
	if err := checkAccountable(budget); err != nil {
		return nil, err
	}
	w, err := s.window(budget, asOf)
	if err != nil {
		return nil, err
	}
	cut := w.Start.UTC()

	existing, err := findPeriodByKey(tx, budget.ID, w.Key)
	switch {
	case err == nil && existing.Status == models.PeriodStatusFinalized:
		return nil, apperrors.ErrPeriodicityConflict
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var open []models.BudgetPeriod
	if err := tx.Where("budget_id = ? AND status <> ? AND end_date >= ?", budget.ID, models.PeriodStatusFinalized, cut).
		Order("start_date ASC").
		Find(&open).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var moves []displacedExpense
	for i := range open {
		if open[i].Key().Periodicity() == budget.Periodicity {
			continue
		}
		moved, err := displace(tx, &open[i], cut)
		if err != nil {
			return nil, err
		}
		moves = append(moves, moved...)
	}

	current, created, err := s.GetOrCreatePeriod(tx, budget, asOf)
	if err != nil {
		return nil, err
	}
	if created {
		if err := clipStart(tx, current); err != nil {
			return nil, err
		}
	}

	for _, m := range moves {
		if _, _, err := s.ApplyExpense(tx, budget, m.TransactionID, m.Amount, m.Date); err != nil {
			return nil, err
		}
	}

	if err := tx.Where("id = ?", current.ID).First(current).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return current, nil
}

// displace detaches the expenses of p dated at or after cut and closes p. A
// period starting before cut is shortened to end one second before it and
// finalized; any other is deleted.
func displace(tx *gorm.DB, p *models.BudgetPeriod, cut time.Time) ([]displacedExpense, error) {
	var moved []displacedExpense
	if err := tx.Table("budget_expense_applications AS a").
		Select("a.transaction_id, a.amount, t.date").
		Joins("JOIN transactions t ON t.id = a.transaction_id").
		Where("a.period_id = ? AND t.date >= ? AND t.deleted_at IS NULL", p.ID, cut).
		Scan(&moved).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := decimal.Zero
	ids := make([]string, 0, len(moved))
	for _, m := range moved {
		total = total.Add(m.Amount)
		ids = append(ids, m.TransactionID)
	}
	if len(ids) > 0 {
		if err := tx.Where("transaction_id IN ?", ids).Delete(&models.ExpenseApplication{}).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	if p.StartDate.Before(cut) {
		spent := p.Spent.Sub(total)
		if spent.IsNegative() {
			spent = decimal.Zero
		}
		if err := tx.Model(&models.BudgetPeriod{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"end_date": cut.Add(-time.Second),
			"spent":    spent,
			"status":   models.PeriodStatusFinalized,
		}).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	} else if err := tx.Delete(&models.BudgetPeriod{}, "id = ?", p.ID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.Get().Infow("budget period displaced by cadence change",
		"budget_id", p.BudgetID,
		"period_id", p.ID,
		"key", p.Key().String(),
		"moved_expenses", len(moved),
	)
	return moved, nil
}

// clipStart moves the start of a new period past a finalized period that
// still covers the beginning of its window.
func clipStart(tx *gorm.DB, p *models.BudgetPeriod) error {
	var prior models.BudgetPeriod
	err := tx.Where("budget_id = ? AND id <> ? AND start_date <= ? AND end_date >= ?",
		p.BudgetID, p.ID, p.EndDate, p.StartDate).
		Order("end_date DESC").
		First(&prior).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	start := prior.EndDate.Add(time.Second).UTC()
	if !start.Before(p.EndDate) {
		return apperrors.ErrPeriodicityConflict
	}
	if err := tx.Model(&models.BudgetPeriod{}).Where("id = ?", p.ID).Update("start_date", start).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	p.StartDate = start
	return nil
}

func (s *periodService) appliedPeriod(tx *gorm.DB, transactionID string) (*models.BudgetPeriod, error) {
	var application models.ExpenseApplication
	if err := tx.Where("transaction_id = ?", transactionID).First(&application).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var p models.BudgetPeriod
	if err := tx.Where("id = ?", application.PeriodID).First(&p).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &p, nil
}

// ListAlertablePeriods returns one descriptor per unfinalized period of the
// user's active budgets that is at or above threshold and not yet alerted.
func (s *periodService) ListAlertablePeriods(userID string) ([]alert.Descriptor, error) {
	var budgets []models.Budget
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(budgets) == 0 {
		return []alert.Descriptor{}, nil
	}

	byID := make(map[string]*models.Budget, len(budgets))
	ids := make([]string, 0, len(budgets))
	for i := range budgets {
		byID[budgets[i].ID] = &budgets[i]
		ids = append(ids, budgets[i].ID)
	}

	var periods []models.BudgetPeriod
	if err := s.db.Where("budget_id IN ? AND alert_sent = ? AND status <> ?", ids, false, models.PeriodStatusFinalized).
		Order("start_date ASC").
		Find(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	descriptors := []alert.Descriptor{}
	for i := range periods {
		if d := alert.Evaluate(&periods[i], byID[periods[i].BudgetID]); d != nil {
			descriptors = append(descriptors, *d)
		}
	}
	return descriptors, nil
}

// MarkAlertSent records that the alert for a period has been delivered.
func (s *periodService) MarkAlertSent(periodID string) error {
	res := s.db.Model(&models.BudgetPeriod{}).Where("id = ?", periodID).Update("alert_sent", true)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrPeriodNotFound
	}
	return nil
}

// MarkAlertSentForUser is MarkAlertSent restricted to the user's own budgets.
func (s *periodService) MarkAlertSentForUser(userID, periodID string) error {
	owned := s.db.Model(&models.Budget{}).Select("id").Where("user_id = ?", userID)
	res := s.db.Model(&models.BudgetPeriod{}).
		Where("id = ? AND budget_id IN (?)", periodID, owned).
		Update("alert_sent", true)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.WithMessage(apperrors.ErrPeriodNotFound, fmt.Sprintf("budget period %s not found", periodID))
	}
	return nil
}
