package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"zapgastos/internal/alert"
	"zapgastos/internal/models"
	"zapgastos/internal/notify"
	"zapgastos/internal/period"
	"zapgastos/internal/testutil"
)

// march10 is the reference instant most engine tests run at.
var march10 = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type engine struct {
	calc         *period.Calculator
	periods      PeriodServicer
	budgets      BudgetServicer
	recon        ReconciliationServicer
	categories   CategoryServicer
	transactions TransactionServicer
}

func newEngine(db *gorm.DB, notifier notify.Notifier) *engine {
	calc := period.NewCalculator(time.UTC)
	periods := NewPeriodService(db, calc)
	budgets := NewBudgetService(db, periods, calc, models.DefaultAlertThreshold)
	recon := NewReconciliationService(db, periods, calc, 72*time.Hour)
	categories := NewCategoryService(db)
	return &engine{
		calc:         calc,
		periods:      periods,
		budgets:      budgets,
		recon:        recon,
		categories:   categories,
		transactions: NewTransactionService(db, categories, budgets, periods, recon, notifier),
	}
}

// fakeNotifier records deliveries and fails when err is set.
type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls []*alert.Descriptor
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) Notify(_ context.Context, d *alert.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func countPeriods(t *testing.T, db *gorm.DB, budgetID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.BudgetPeriod{}).Where("budget_id = ?", budgetID).Count(&n).Error; err != nil {
		t.Fatalf("count periods: %v", err)
	}
	return n
}

// applyExpense records a ledger row and applies it like the transaction
// service does, returning the period and alert.
func applyExpense(t *testing.T, db *gorm.DB, e *engine, budget *models.Budget, amount string, date time.Time) (*models.BudgetPeriod, *alert.Descriptor) {
	t.Helper()
	ledger := testutil.CreateTestTransaction(t, db, budget.UserID, &budget.CategoryID, models.TransactionTypeExpense, amount, date)
	var p *models.BudgetPeriod
	var d *alert.Descriptor
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		p, d, err = e.periods.ApplyExpense(tx, budget, ledger.ID, ledger.Amount, date)
		return err
	})
	testutil.AssertNoError(t, err)
	return p, d
}
