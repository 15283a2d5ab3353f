package testutil_test

import (
	"testing"
	"time"

	"zapgastos/internal/errors"
	"zapgastos/internal/models"
	"zapgastos/internal/period"
	"zapgastos/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"categories", "transactions", "budgets", "budget_periods", "budget_expense_applications", "api_keys", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	userID := testutil.NewUserID()

	category := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
	if category.Type != models.CategoryTypeExpense {
		t.Errorf("expected expense category, got %s", category.Type)
	}

	tx := testutil.CreateTestTransaction(t, db, userID, &category.ID, models.TransactionTypeExpense, "12.34", time.Now())
	if tx.Amount.String() != "12.34" {
		t.Errorf("expected amount 12.34, got %s", tx.Amount)
	}

	budget := testutil.CreateTestBudget(t, db, userID, category.ID, period.Weekly)
	if budget.ID == "" {
		t.Fatal("budget should have an ID")
	}
	if budget.LimitAmount.String() != "100" {
		t.Errorf("expected budget limit 100, got %s", budget.LimitAmount)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrBudgetNotFound, "custom message")
	testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
